package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishRoutesByChannel(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, Config{TopicPrefix: "bot", Channels: []string{"trades", "signals"}}, discard())
	ctx := context.Background()

	if err := p.Publish(ctx, "trades", []byte(`{"instrument":"BTC-USD","kind":"BUY"}`)); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(ctx, "signals", []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(ctx, "prices", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	if len(w.msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(w.msgs))
	}
	if w.msgs[0].Topic != "bot.trades" || string(w.msgs[0].Key) != "BTC-USD" {
		t.Errorf("first message topic=%s key=%s", w.msgs[0].Topic, w.msgs[0].Key)
	}
	if w.msgs[1].Topic != "bot.signals" || string(w.msgs[1].Key) != "signals" {
		t.Errorf("second message topic=%s key=%s", w.msgs[1].Topic, w.msgs[1].Key)
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newPublisher(&fakeWriter{err: boom}, Config{}, discard())
	err := p.Publish(context.Background(), "cycles", []byte(`{}`))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if p.Topic("cycles") != "coinbot.cycles" {
		t.Fatalf("default topic = %s", p.Topic("cycles"))
	}
}

func TestNewPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewPublisher(Config{}, discard()); err == nil {
		t.Fatal("expected error without brokers")
	}
}
