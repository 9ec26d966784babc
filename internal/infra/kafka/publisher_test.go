package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"trivia-live-service/internal/app"
)

func TestPublisherSendsEventJSON(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got app.Event
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Type != app.EventAnswerRecorded || got.MatchID != "m1" || got.ID != "evt-1" {
			return fmt.Errorf("unexpected event %+v", got)
		}
		return nil
	})

	pub := NewPublisher(producer, "trivia-events", quietLogger())
	err := pub.Publish(context.Background(), app.Event{
		ID:         "evt-1",
		Type:       app.EventAnswerRecorded,
		MatchID:    "m1",
		Payload:    map[string]any{"placement": 1},
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPublisherReportsBrokerFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	pub := NewPublisher(producer, "trivia-events", quietLogger())
	err := pub.Publish(context.Background(), app.Event{Type: app.EventMatchStatus, MatchID: "m1"})
	if !errors.Is(err, sarama.ErrNotLeaderForPartition) {
		t.Fatalf("expected broker error, got %v", err)
	}
	_ = pub.Close()
}

func TestPublisherHonoursCanceledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	pub := NewPublisher(producer, "trivia-events", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, app.Event{MatchID: "m1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	_ = pub.Close()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
