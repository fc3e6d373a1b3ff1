// Package pipeline holds the generic stage execution model: the
// poll/process/acknowledge loop every stage instantiates, and the error
// taxonomy that decides what gets retried in process and what terminates
// the worker for broker-driven redelivery.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/happyfinder/internal/metrics"
	"github.com/example/happyfinder/internal/queue"
)

// Broker is the slice of the queue client the harness needs.
type Broker interface {
	Receive(ctx context.Context, name string, timeout time.Duration) (*queue.Message, error)
	Ack(ctx context.Context, msg *queue.Message) error
}

// HandlerFunc maps one inbound message body to zero or more outbound
// messages and at most one store mutation. Handlers must be idempotent:
// the same body may be delivered more than once.
type HandlerFunc func(ctx context.Context, body string) error

// Worker runs a single stage: claim one message, hand it to the stage
// handler, acknowledge on success. Handler failures past the retry budget
// propagate out of Run and are expected to terminate the process; the
// unacknowledged message stays in flight until a restart reclaims it.
type Worker struct {
	Stage   string
	Inbound string
	Broker  Broker
	Handler HandlerFunc
	Log     *zap.Logger

	// PollBackoff is the sleep after an empty poll; ReceiveTimeout bounds
	// the blocking receive itself.
	PollBackoff    time.Duration
	ReceiveTimeout time.Duration

	// RetryAttempts bounds in-process retries of retryable handler errors
	// (see Retryable) before Run gives up.
	RetryAttempts int
	RetryBackoff  time.Duration
}

func (w *Worker) Run(ctx context.Context) error {
	log := w.Log.With(zap.String("queue", w.Inbound))
	log.Info("worker started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := w.Broker.Receive(ctx, w.Inbound, w.ReceiveTimeout)
		if err != nil {
			return err
		}
		if msg == nil {
			if !sleep(ctx, w.PollBackoff) {
				return ctx.Err()
			}
			continue
		}

		if err := w.process(ctx, msg); err != nil {
			metrics.MessagesFailed.WithLabelValues(w.Stage).Inc()
			log.Error("handler failed", zap.String("message_id", msg.ID), zap.Error(err))
			return err
		}

		if err := w.Broker.Ack(ctx, msg); err != nil {
			if errors.Is(err, queue.ErrReclaimed) {
				// The work is done; the redelivered copy no-ops against
				// the idempotent store.
				log.Warn("message reclaimed before ack", zap.String("message_id", msg.ID))
				metrics.MessagesProcessed.WithLabelValues(w.Stage).Inc()
				continue
			}
			// Includes queue.ErrAckMismatch, which must never be swallowed.
			log.Error("ack failed", zap.String("message_id", msg.ID), zap.Error(err))
			return err
		}
		metrics.MessagesProcessed.WithLabelValues(w.Stage).Inc()
	}
}

func (w *Worker) process(ctx context.Context, msg *queue.Message) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = w.Handler(ctx, msg.Body)
		if err == nil {
			return nil
		}
		if !Retryable(err) || attempt >= w.RetryAttempts {
			return err
		}
		metrics.HandlerRetries.WithLabelValues(w.Stage).Inc()
		w.Log.Warn("retrying handler",
			zap.String("message_id", msg.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if !sleep(ctx, backoff(w.RetryBackoff, attempt)) {
			return errors.Join(err, ctx.Err())
		}
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	return base << attempt
}

// sleep waits for d unless the context ends first; reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
