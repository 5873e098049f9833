package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestEncode(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	body, err := Encode(ResultCreated, map[string]any{"examId": "e1", "score": 50}, at)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got struct {
		Type       string         `json:"type"`
		OccurredAt time.Time      `json:"occurredAt"`
		Payload    map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != ResultCreated {
		t.Errorf("type = %q, want %q", got.Type, ResultCreated)
	}
	if !got.OccurredAt.Equal(at) || got.OccurredAt.Location() != time.UTC {
		t.Errorf("occurredAt = %v, want %v in UTC", got.OccurredAt, at)
	}
	if got.Payload["examId"] != "e1" {
		t.Errorf("payload = %v", got.Payload)
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), ExamCreated, nil); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
