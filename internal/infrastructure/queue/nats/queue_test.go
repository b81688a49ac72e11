package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/workspace-search/internal/core/domain"
	"github.com/kirillkom/workspace-search/internal/infrastructure/resilience"
)

func TestIndexEventRoundTrip(t *testing.T) {
	payload, err := encodeIndexEvent(domain.IndexEvent{Kind: domain.IndexEventDocumentChunk, IDs: []int64{4, 9}})
	if err != nil {
		t.Fatalf("encode error = %v", err)
	}
	event, err := decodeIndexEvent(payload)
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if event.Kind != domain.IndexEventDocumentChunk || len(event.IDs) != 2 || event.IDs[1] != 9 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestEncodeRejectsEmptyIDs(t *testing.T) {
	_, err := encodeIndexEvent(domain.IndexEvent{Kind: domain.IndexEventSlackMessage})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDecodeRejectsUnknownKindAndGarbage(t *testing.T) {
	if _, err := decodeIndexEvent([]byte(`{"kind":"email","ids":[1]}`)); err == nil {
		t.Fatalf("expected unknown kind error")
	}
	if _, err := decodeIndexEvent([]byte(`not-json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestHandleRetriesTemporaryHandlerErrors(t *testing.T) {
	q := &Queue{executor: resilience.NewExecutor(resilience.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, nil)}

	attempts := 0
	err := q.handle(context.Background(), domain.IndexEvent{Kind: domain.IndexEventSlackMessage, IDs: []int64{1}}, func(context.Context, domain.IndexEvent) error {
		attempts++
		if attempts < 2 {
			return domain.WrapError(domain.ErrTemporary, "load", errors.New("db busy"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestHandleDoesNotRetryPermanentErrors(t *testing.T) {
	q := &Queue{executor: resilience.NewExecutor(resilience.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, nil)}

	attempts := 0
	_ = q.handle(context.Background(), domain.IndexEvent{}, func(context.Context, domain.IndexEvent) error {
		attempts++
		return domain.WrapError(domain.ErrInvalidInput, "index", errors.New("bad kind"))
	})
	if attempts != 1 {
		t.Fatalf("expected single attempt, got %d", attempts)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	err := wrapTemporaryIfNeeded(fmt.Errorf("publish: %w", nats.ErrConnectionClosed))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	plain := errors.New("bad subject")
	if got := wrapTemporaryIfNeeded(plain); got != plain {
		t.Fatalf("expected passthrough, got %v", got)
	}
}
