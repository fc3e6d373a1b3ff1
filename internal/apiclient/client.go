// Package apiclient performs the outbound HTTP GETs for every stage.
//
// Two call paths: Get for providers whose key is already embedded in the
// URL (the mapping provider), and Authed.Get for the venue provider, which
// signs each request with a rotated credential pair and drives the
// rate-limit window bookkeeping.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/example/happyfinder/internal/creds"
	"github.com/example/happyfinder/internal/metrics"
	"github.com/example/happyfinder/internal/pipeline"
)

const rateLimitResetHeader = "X-RateLimit-Reset"

type Client struct {
	hc       *http.Client
	log      *zap.Logger
	provider string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(log *zap.Logger, provider string) *Client {
	return &Client{
		// Redirects are followed by default; the menu endpoint redirects.
		hc:       &http.Client{Timeout: 20 * time.Second},
		log:      log,
		provider: provider,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Get fetches rawURL and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, rawURL string, out any) error {
	status, _, body, err := c.do(ctx, rawURL)
	if err != nil {
		metrics.APIRequests.WithLabelValues(c.provider, "error").Inc()
		return &pipeline.TransportError{URL: rawURL, Err: err}
	}
	if status < 200 || status > 299 {
		metrics.APIRequests.WithLabelValues(c.provider, strconv.Itoa(status)).Inc()
		return &pipeline.TransportError{URL: rawURL, Status: status}
	}
	metrics.APIRequests.WithLabelValues(c.provider, "ok").Inc()
	return decode(rawURL, body, out)
}

func (c *Client) do(ctx context.Context, rawURL string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, res.Header, nil, err
	}
	return res.StatusCode, res.Header, b, nil
}

func decode(rawURL string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &pipeline.DecodeError{URL: rawURL, Err: err}
	}
	return nil
}

// Authed signs requests with rotated credentials and tracks each
// credential's rate-limit window.
type Authed struct {
	c       *Client
	rotator *creds.Rotator
	version string

	// windows maps client id to the provider-supplied reset time recorded
	// on the credential's last rejection.
	windows map[string]time.Time
}

func NewAuthed(c *Client, rotator *creds.Rotator, version string) *Authed {
	return &Authed{
		c:       c,
		rotator: rotator,
		version: version,
		windows: make(map[string]time.Time),
	}
}

// Get signs rawURL with the next rotated credential, fetches it, and
// decodes the JSON body into out.
//
// On a 403 the provider's reset time is recorded for that credential and
// the request is retried immediately on the next rotated pair; only when
// every pair is inside its recorded window does the call block until the
// earliest reset. A second 403 from a credential whose recorded window has
// already elapsed is surfaced as ErrRateLimitPolicy.
func (a *Authed) Get(ctx context.Context, rawURL string, out any) error {
	for {
		var earliest time.Time
		for i := 0; i < a.rotator.Len(); i++ {
			cred := a.rotator.Next()
			now := a.c.now()

			if reset, ok := a.windows[cred.ClientID]; ok && now.Before(reset) {
				if earliest.IsZero() || reset.Before(earliest) {
					earliest = reset
				}
				continue
			}

			signed, err := signURL(rawURL, cred, a.version)
			if err != nil {
				return err
			}

			status, header, body, err := a.c.do(ctx, signed)
			if err != nil {
				metrics.APIRequests.WithLabelValues(a.c.provider, "error").Inc()
				return &pipeline.TransportError{URL: rawURL, Err: err}
			}

			if status == http.StatusForbidden {
				metrics.RateLimitHits.WithLabelValues(a.c.provider).Inc()
				_, hadWindow := a.windows[cred.ClientID]
				if hadWindow {
					// The window we recorded already elapsed (otherwise the
					// credential would have been skipped above), yet the
					// provider rejected again.
					return fmt.Errorf("%w: client_id=%s", pipeline.ErrRateLimitPolicy, cred.ClientID)
				}
				reset, perr := parseReset(header)
				if perr != nil {
					return &pipeline.TransportError{URL: rawURL, Status: status, Err: perr}
				}
				a.windows[cred.ClientID] = reset
				a.c.log.Warn("rate limited, rotating credential",
					zap.String("client_id", cred.ClientID),
					zap.Time("reset", reset))
				if earliest.IsZero() || reset.Before(earliest) {
					earliest = reset
				}
				continue
			}

			if status < 200 || status > 299 {
				metrics.APIRequests.WithLabelValues(a.c.provider, strconv.Itoa(status)).Inc()
				return &pipeline.TransportError{URL: rawURL, Status: status}
			}
			metrics.APIRequests.WithLabelValues(a.c.provider, "ok").Inc()
			// A success after the window elapsed means the quota really did
			// reset; forget the window so a future 403 is a fresh limit.
			delete(a.windows, cred.ClientID)
			return decode(rawURL, body, out)
		}

		// Every credential is inside a recorded window. Block until the
		// earliest one opens, then go around again.
		wait := earliest.Sub(a.c.now())
		a.c.log.Info("all credentials rate limited, waiting", zap.Duration("wait", wait))
		if err := a.c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func signURL(rawURL string, cred creds.Pair, version string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("apiclient: bad url %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set("client_id", cred.ClientID)
	q.Set("client_secret", cred.Secret)
	q.Set("v", version)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseReset(header http.Header) (time.Time, error) {
	v := header.Get(rateLimitResetHeader)
	if v == "" {
		return time.Time{}, fmt.Errorf("missing %s header on 403", rateLimitResetHeader)
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad %s header %q: %w", rateLimitResetHeader, v, err)
	}
	return time.Unix(int64(secs), 0), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
