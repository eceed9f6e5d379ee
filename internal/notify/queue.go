package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oakline/storefront/internal/common"
	"github.com/oakline/storefront/internal/lock"
	"github.com/oakline/storefront/internal/queue"
)

type emailTask struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// QueueSender implements common.EmailSender by handing messages to the
// delayed queue instead of delivering them inline. The API process uses it
// so slow mail delivery never blocks a request.
type QueueSender struct {
	Q           queue.Enqueuer
	MaxAttempts int
}

// Send enqueues the email for the delivery worker. Identical messages are
// deduplicated within the enqueuer's window.
func (s QueueSender) Send(to, subject, html string) error {
	payload, err := json.Marshal(emailTask{To: to, Subject: subject, HTML: html})
	if err != nil {
		return fmt.Errorf("notify: encode email task: %w", err)
	}
	return s.Q.Enqueue(context.Background(), queue.Task{
		Kind:           queue.KindEmailDelivery,
		Payload:        payload,
		IdempotencyKey: emailTaskKey(to, subject, html),
		MaxAttempts:    s.MaxAttempts,
	})
}

func emailTaskKey(to, subject, html string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{to, subject, html}, "\x00")))
	return hex.EncodeToString(sum[:])
}

// DeliveryWorker drains email tasks from the queue and hands them to the
// configured sender. When a locker is set, deliveries to the same recipient
// are serialized across worker goroutines.
type DeliveryWorker struct {
	Mail    common.EmailSender
	Locker  *lock.Locker
	LockTTL time.Duration
	Logger  *zerolog.Logger
}

// Handle decodes a queued email task and delivers it. Malformed payloads are
// dropped rather than retried since redelivery cannot fix them.
func (w DeliveryWorker) Handle(ctx context.Context, payload []byte) error {
	var task emailTask
	if err := json.Unmarshal(payload, &task); err != nil {
		if w.Logger != nil {
			w.Logger.Error().Err(err).Msg("drop malformed email task")
		}
		return nil
	}
	if strings.TrimSpace(task.To) == "" {
		return nil
	}
	if w.Mail == nil {
		return fmt.Errorf("notify: no mail sender configured")
	}
	deliver := func() error { return w.Mail.Send(task.To, task.Subject, task.HTML) }
	var err error
	if w.Locker != nil {
		ttl := w.LockTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		err = w.Locker.WithLock(ctx, "email:"+task.To, ttl, func(context.Context) error { return deliver() })
	} else {
		err = deliver()
	}
	if err != nil {
		return fmt.Errorf("notify: deliver email to %s: %w", task.To, err)
	}
	if w.Logger != nil {
		w.Logger.Info().Str("to", task.To).Str("subject", task.Subject).Msg("email delivered")
	}
	return nil
}

// LogSender writes emails to the log instead of a real mail provider. It is
// the default sender in development and sandbox environments.
type LogSender struct {
	Logger *zerolog.Logger
	From   string
}

// Send implements common.EmailSender.
func (s LogSender) Send(to, subject, html string) error {
	if s.Logger != nil {
		s.Logger.Info().
			Str("from", s.From).
			Str("to", to).
			Str("subject", subject).
			Int("bytes", len(html)).
			Msg("email (log delivery)")
	}
	return nil
}
