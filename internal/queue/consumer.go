package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MailSink drains the auth.email queue into a local log file.  It stands
// in for the real mail collaborator in development.
type MailSink struct {
	URL  string
	Path string // defaults to logs/mail.log
	Log  *zap.SugaredLogger
}

// Run connects to the broker and consumes until ctx is cancelled.  Broker
// failures are retried with exponential backoff capped at 30s.
func (s *MailSink) Run(ctx context.Context) error {
	if s.Log == nil {
		s.Log = zap.NewNop().Sugar()
	}
	if s.Path == "" {
		s.Path = filepath.Join("logs", "mail.log")
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(s.URL)
		if err != nil {
			s.Log.Warnw("mail-sink: failed to dial broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = s.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Log.Warnw("mail-sink: consume loop ended; reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (s *MailSink) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		s.Log.Warnw("mail-sink: set QoS failed", "error", err)
	}
	if _, err := declareEmailQueue(ch); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(EmailQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := s.handle(d.Body); err != nil {
				s.Log.Warnw("mail-sink: handle message failed", "error", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handle appends one line per message to the sink file.
func (s *MailSink) handle(body []byte) error {
	line, err := FormatMailLine(body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatMailLine renders an EmailRequestedEvent body as one log line.
func FormatMailLine(body []byte) (string, error) {
	var ev EmailRequestedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	if ev.To == "" {
		return "", errors.New("event without recipient")
	}
	return fmt.Sprintf("[%s] Email requested | template=%s | user_id=%d | to=%q | subject=%q | link=%s\n",
		ev.RequestedAt, ev.Template, ev.UserID, ev.To, ev.Subject, ev.Link), nil
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
