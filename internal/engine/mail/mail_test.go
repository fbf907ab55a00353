package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type recordingEnqueuer struct {
	types  []string
	queues []string
	msgs   []Message
}

func (e *recordingEnqueuer) Enqueue(ctx context.Context, taskType string, payload any, queueName string) error {
	e.types = append(e.types, taskType)
	e.queues = append(e.queues, queueName)
	e.msgs = append(e.msgs, payload.(Message))
	return nil
}

type fakeLinker struct{}

func (fakeLinker) OneClickURL(email string) (string, error) {
	return "https://example.com/unsubscribe/one-click?email=" + email, nil
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		mode    string
		testing bool
		want    string
	}{
		{"send", false, ModeSend},
		{"queue", true, ModeQueue},
		{"auto", true, ModeSend},
		{"auto", false, ModeQueue},
		{" AUTO ", true, ModeSend},
		{"carrier-pigeon", true, ModeQueue},
		{"", false, ModeQueue},
	}
	for _, tt := range tests {
		if got := ResolveMode(tt.mode, tt.testing); got != tt.want {
			t.Errorf("ResolveMode(%q, %v) = %s, want %s", tt.mode, tt.testing, got, tt.want)
		}
	}
}

func TestDispatcher_QueueStampsQueueAndHeaders(t *testing.T) {
	enq := &recordingEnqueuer{}
	sender := &recordingSender{}
	d := NewDispatcher(DispatcherConfig{Mode: "queue", Queue: "mail"}, sender, enq, fakeLinker{})

	msg := Message{Subject: "Hi", Text: "body", Headers: map[string]string{"X-Tag": "welcome"}}
	if err := d.Deliver(context.Background(), msg, []string{"a@example.com", "b@example.com"}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if len(sender.sent) != 0 {
		t.Errorf("Expected nothing sent inline, got %d", len(sender.sent))
	}
	if len(enq.msgs) != 2 {
		t.Fatalf("Expected 2 queued messages, got %d", len(enq.msgs))
	}
	for i, m := range enq.msgs {
		if enq.types[i] != "mail:send" || enq.queues[i] != "mail" || m.Queue != "mail" {
			t.Errorf("Unexpected routing: type=%s queue=%s msg.Queue=%s", enq.types[i], enq.queues[i], m.Queue)
		}
		if !strings.Contains(m.Headers["List-Unsubscribe"], m.To) {
			t.Errorf("Expected per-recipient unsubscribe link, got %s", m.Headers["List-Unsubscribe"])
		}
		if m.Headers["List-Unsubscribe-Post"] != "List-Unsubscribe=One-Click" {
			t.Errorf("Unexpected List-Unsubscribe-Post: %s", m.Headers["List-Unsubscribe-Post"])
		}
		if m.Headers["X-Tag"] != "welcome" {
			t.Error("Expected caller headers to be kept")
		}
	}
	if _, ok := msg.Headers["List-Unsubscribe"]; ok {
		t.Error("Expected caller's message to be left untouched")
	}
}

func TestDispatcher_AutoSendsUnderTestingProfile(t *testing.T) {
	sender := &recordingSender{}
	enq := &recordingEnqueuer{}
	d := NewDispatcher(DispatcherConfig{Mode: "auto", TestingProfile: true, Queue: "mail"}, sender, enq, nil)

	if d.Mode() != ModeSend {
		t.Fatalf("Expected send mode, got %s", d.Mode())
	}
	if err := d.Deliver(context.Background(), Message{Subject: "Hi"}, []string{"a@example.com"}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(sender.sent) != 1 || len(enq.msgs) != 0 {
		t.Errorf("Expected inline send, got sent=%d queued=%d", len(sender.sent), len(enq.msgs))
	}
	if sender.sent[0].Queue != "mail" {
		t.Errorf("Expected queue name stamped even when sending, got %q", sender.sent[0].Queue)
	}
}

func TestDispatcher_SendErrorPropagates(t *testing.T) {
	sender := &recordingSender{err: fmt.Errorf("connection refused")}
	d := NewDispatcher(DispatcherConfig{Mode: "send"}, sender, nil, nil)

	if err := d.Deliver(context.Background(), Message{}, []string{"a@example.com"}); err == nil {
		t.Error("Expected error from sender")
	}
}

func TestTaskHandler(t *testing.T) {
	sender := &recordingSender{}
	handler := NewTaskHandler(sender)

	payload, _ := json.Marshal(Message{To: "a@example.com", Subject: "Queued"})
	if err := handler(context.Background(), asynq.NewTask("mail:send", payload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].Subject != "Queued" {
		t.Errorf("Expected queued message to be sent, got %+v", sender.sent)
	}

	err := handler(context.Background(), asynq.NewTask("mail:send", []byte("{not json")))
	if err == nil || !strings.Contains(err.Error(), "skip retry") {
		t.Errorf("Expected skip-retry error for bad payload, got %v", err)
	}
}

func TestBuildMessage(t *testing.T) {
	raw := string(buildMessage(
		mailAddress("MyStore", "noreply@example.com"),
		Message{To: "a@example.com", Subject: "Hello", Text: "Body", Headers: map[string]string{"List-Unsubscribe": "<https://x>"}},
	))
	for _, want := range []string{"To: a@example.com\r\n", "Subject: Hello\r\n", "List-Unsubscribe: <https://x>\r\n", "\r\n\r\nBody"} {
		if !strings.Contains(raw, want) {
			t.Errorf("Expected message to contain %q, got %q", want, raw)
		}
	}
}
