package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "topsis.calculation.abc.completed", SubjectCalculationCompleted("topsis", "abc"))
	assert.Equal(t, "topsis.calculation.rejected", SubjectCalculationRejected("topsis"))
	assert.Equal(t, "topsis.delivery.abc.failed", SubjectDeliveryFailed("topsis", "abc"))
}

func TestStreamName(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"topsis", "TOPSIS_EVENTS"},
		{"acme.topsis", "ACME_TOPSIS_EVENTS"},
		{"rank-svc", "RANK_SVC_EVENTS"},
	}
	for _, tt := range tests {
		if got := StreamName(tt.prefix); got != tt.want {
			t.Errorf("StreamName(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish("topsis.anything", map[string]string{"k": "v"}))
	p.Close()
}

// TestNATSPublisher_RoundTrip needs a running nats-server with JetStream.
func TestNATSPublisher_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub, err := NewNATSPublisher(ctx, url, "topsistest", logger)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("topsistest.calculation.*.completed", received)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	event := CalculationCompletedEvent{RunID: "run-1", Rows: 3, Criteria: 2, Delivered: true}
	require.NoError(t, pub.Publish(SubjectCalculationCompleted(pub.Prefix(), "run-1"), event))

	select {
	case msg := <-received:
		var got CalculationCompletedEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, event.RunID, got.RunID)
		assert.Equal(t, 3, got.Rows)
	case <-ctx.Done():
		t.Fatal("event not received")
	}
}
