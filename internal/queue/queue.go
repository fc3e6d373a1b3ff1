// Package queue provides the message transport between pipeline stages,
// backed by Redis lists.
//
// Each named queue is a pair of lists: the inbound list and an in-flight
// list. Claiming a message atomically moves it from inbound to in-flight,
// so a worker that dies mid-message leaves the message parked in-flight
// rather than lost; Reclaim moves parked messages back for redelivery.
// Acknowledging removes the exact claimed entry from the in-flight list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "happyfinder:q:"

// Message is one claimed unit of work. Body is either a bare URL or a
// serialized JSON object, per the consuming stage's contract. The receipt
// is the raw envelope as it sits in the in-flight list and is what Ack
// removes.
type Message struct {
	ID   string
	Body string

	queue   string
	receipt string
}

type envelope struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// ErrAckMismatch reports that the entry removed during acknowledgment did
// not carry the id of the claimed message. This means the broker state and
// the worker's view have diverged and nothing about the in-flight message
// can be trusted; callers must treat it as fatal.
var ErrAckMismatch = errors.New("queue: acknowledged message id does not match claimed message id")

// ErrReclaimed reports that the claimed entry was gone from the in-flight
// list by acknowledgment time: a reclaim pass moved it back to the inbound
// list first, so the message will be delivered again. Handlers are
// idempotent, so callers may log and move on.
var ErrReclaimed = errors.New("queue: claimed message was reclaimed before acknowledgment")

type Client struct {
	rdb *redis.Client
}

func New(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

func inboundKey(name string) string  { return keyPrefix + name }
func inflightKey(name string) string { return keyPrefix + name + ":inflight" }

// Send enqueues body on the named queue under a fresh message id.
func (c *Client) Send(ctx context.Context, name, body string) error {
	raw, err := json.Marshal(envelope{ID: uuid.NewString(), Body: body})
	if err != nil {
		return err
	}
	if err := c.rdb.LPush(ctx, inboundKey(name), raw).Err(); err != nil {
		return fmt.Errorf("queue: send to %s: %w", name, err)
	}
	return nil
}

// Receive claims at most one message, blocking up to timeout. A nil message
// with a nil error means the queue was empty.
func (c *Client) Receive(ctx context.Context, name string, timeout time.Duration) (*Message, error) {
	raw, err := c.rdb.BLMove(ctx, inboundKey(name), inflightKey(name), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: receive from %s: %w", name, err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// A corrupt envelope can never be acknowledged by id; drop it from
		// the in-flight list and surface the failure.
		_ = c.rdb.LRem(ctx, inflightKey(name), 1, raw).Err()
		return nil, fmt.Errorf("queue: corrupt envelope on %s: %w", name, err)
	}
	return &Message{ID: env.ID, Body: env.Body, queue: name, receipt: raw}, nil
}

// Ack deletes the claimed message from the in-flight list, confirming that
// the removed entry carries the same message id that was claimed.
func (c *Client) Ack(ctx context.Context, msg *Message) error {
	var env envelope
	if err := json.Unmarshal([]byte(msg.receipt), &env); err != nil {
		return fmt.Errorf("queue: ack %s: %w", msg.ID, err)
	}
	if env.ID != msg.ID {
		return fmt.Errorf("%w: claimed=%s removed=%s", ErrAckMismatch, msg.ID, env.ID)
	}
	n, err := c.rdb.LRem(ctx, inflightKey(msg.queue), 1, msg.receipt).Result()
	if err != nil {
		return fmt.Errorf("queue: ack %s: %w", msg.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id=%s", ErrReclaimed, msg.ID)
	}
	return nil
}

// Reclaim moves every in-flight message of the named queue back to the
// inbound list and reports how many were moved. Run at worker startup to
// redeliver work left behind by a crashed process.
func (c *Client) Reclaim(ctx context.Context, name string) (int, error) {
	moved := 0
	for {
		err := c.rdb.LMove(ctx, inflightKey(name), inboundKey(name), "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("queue: reclaim %s: %w", name, err)
		}
		moved++
	}
}
