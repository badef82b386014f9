package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_EmptyTokenDisablesNotifier(t *testing.T) {
	n := New("", "#alerts", testLogger())
	if n.Enabled() {
		t.Fatal("Enabled() = true with empty bot token, want false")
	}
}

func TestSend_DisabledNotifierIsNoop(t *testing.T) {
	n := New("", "#alerts", testLogger())
	if err := n.Send(context.Background(), Notification{Source: "incident", Title: "test"}); err != nil {
		t.Fatalf("Send on disabled notifier returned error: %v", err)
	}
}

func TestSeverity_EmojiCoversAllLevels(t *testing.T) {
	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		if s.emoji() == "" {
			t.Fatalf("emoji() for %q returned empty string", s)
		}
	}
}
