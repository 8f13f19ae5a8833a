package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/visa-desk/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "no servers", err: fmt.Errorf("nats publish: %w", nats.ErrNoServers), retryable: true},
		{name: "reconnecting", err: nats.ErrConnectionReconnecting, retryable: true},
		{name: "breaker open", err: gobreaker.ErrOpenState, retryable: true},
		{name: "payload", err: nats.ErrMaxPayload},
		{name: "canceled", err: context.Canceled},
	}
	for _, tc := range cases {
		if got := classifyNATSError(tc.err).Retryable; got != tc.retryable {
			t.Fatalf("%s: retryable = %v, want %v", tc.name, got, tc.retryable)
		}
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrDisconnected); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	permanent := errors.New("bad subject")
	if err := wrapTemporaryIfNeeded(permanent); domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error passthrough, got %v", err)
	}
	if wrapTemporaryIfNeeded(nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}

func TestNewEventBusDefaults(t *testing.T) {
	bus := newEventBus(nil, "", Options{})
	if bus.subject != DefaultSubject || bus.queueGroup != defaultQueueGroup {
		t.Fatalf("unexpected defaults subject=%q group=%q", bus.subject, bus.queueGroup)
	}
	bus.Close()
}
