// Package mail delivers transactional mail either inline or through the job queue.
package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"mystore/internal/pkg/metrics"
	"mystore/internal/platform/queue"
)

const (
	ModeSend  = "send"
	ModeQueue = "queue"
	ModeAuto  = "auto"
)

type Message struct {
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	HTML    string            `json:"html,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Queue   string            `json:"queue,omitempty"`
}

func (m Message) clone() Message {
	out := m
	out.Headers = make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		out.Headers[k] = v
	}
	return out
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// UnsubscribeLinker produces the signed one-click URL for a recipient.
type UnsubscribeLinker interface {
	OneClickURL(email string) (string, error)
}

// ResolveMode maps the configured dispatch mode to send or queue. auto sends
// inline under the testing profile; anything unknown queues.
func ResolveMode(mode string, testingProfile bool) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeSend:
		return ModeSend
	case ModeQueue:
		return ModeQueue
	case ModeAuto:
		if testingProfile {
			return ModeSend
		}
		return ModeQueue
	default:
		return ModeQueue
	}
}

type Dispatcher struct {
	mode      string
	queueName string
	sender    Sender
	enqueuer  queue.Enqueuer
	linker    UnsubscribeLinker
}

type DispatcherConfig struct {
	Mode           string
	TestingProfile bool
	Queue          string
}

func NewDispatcher(cfg DispatcherConfig, sender Sender, enqueuer queue.Enqueuer, linker UnsubscribeLinker) *Dispatcher {
	mode := ResolveMode(cfg.Mode, cfg.TestingProfile)
	if mode == ModeQueue && enqueuer == nil {
		log.Warn().Msg("mail queue unavailable, sending inline")
		mode = ModeSend
	}
	if sender == nil {
		sender = LogSender{}
	}
	return &Dispatcher{
		mode:      mode,
		queueName: cfg.Queue,
		sender:    sender,
		enqueuer:  enqueuer,
		linker:    linker,
	}
}

func (d *Dispatcher) Mode() string { return d.mode }

// Deliver sends msg to each recipient separately so every copy carries its own
// unsubscribe link.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message, recipients []string) error {
	for _, rcpt := range recipients {
		out := msg.clone()
		out.To = rcpt
		if d.queueName != "" {
			out.Queue = d.queueName
		}

		if d.linker != nil {
			link, err := d.linker.OneClickURL(rcpt)
			if err != nil {
				return fmt.Errorf("sign unsubscribe link: %w", err)
			}
			out.Headers["List-Unsubscribe"] = "<" + link + ">"
			out.Headers["List-Unsubscribe-Post"] = "List-Unsubscribe=One-Click"
		}

		if err := d.deliverOne(ctx, out); err != nil {
			metrics.MailDispatched.WithLabelValues(d.mode, "error").Inc()
			return err
		}
		metrics.MailDispatched.WithLabelValues(d.mode, "ok").Inc()
	}
	return nil
}

func (d *Dispatcher) deliverOne(ctx context.Context, msg Message) error {
	if d.mode == ModeQueue {
		if err := d.enqueuer.Enqueue(ctx, queue.TypeMailSend, msg, msg.Queue); err != nil {
			return fmt.Errorf("queue mail: %w", err)
		}
		return nil
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of a mail server.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail delivered to log")
	return nil
}
