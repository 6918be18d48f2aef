package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Transcript is the checkpoint of one conversation thread: every message
// exchanged with the model, tool calls and tool answers included.
type Transcript struct {
	ThreadID  string            `json:"thread_id"`
	Messages  []*schema.Message `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewTranscript(threadID string, now time.Time) *Transcript {
	now = now.UTC()
	return &Transcript{
		ThreadID:  strings.TrimSpace(threadID),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (t *Transcript) Append(msgs ...*schema.Message) {
	for _, m := range msgs {
		if m != nil {
			t.Messages = append(t.Messages, m)
		}
	}
}

func (t *Transcript) Touch(now time.Time) {
	t.UpdatedAt = now.UTC()
}

func (t *Transcript) Validate() error {
	if t == nil {
		return ErrNilTranscript
	}
	if strings.TrimSpace(t.ThreadID) == "" {
		return ErrInvalidThread
	}
	for i, m := range t.Messages {
		if m == nil {
			return fmt.Errorf("message %d is nil", i)
		}
		if m.Role == schema.Tool && m.ToolCallID == "" {
			return fmt.Errorf("tool message %d has no call id", i)
		}
	}
	return nil
}

func encodeTranscript(t *Transcript) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	return payload, nil
}

func decodeTranscript(payload []byte) (*Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transcript loaded from store: %w", err)
	}
	return &t, nil
}
