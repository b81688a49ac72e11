package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/workspace-search/internal/core/domain"
	"github.com/kirillkom/workspace-search/internal/infrastructure/resilience"
)

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("workspace-search"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// PublishIndexEvent is used by ingestion jobs to announce rows that need keyword indexing.
func (q *Queue) PublishIndexEvent(ctx context.Context, event domain.IndexEvent) error {
	payload, err := encodeIndexEvent(event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeIndexEvents blocks until ctx is done. Each process keeps its own keyword index and
// must see every event. Malformed payloads are logged and dropped. Temporary handler
// failures are retried through the executor.
func (q *Queue) SubscribeIndexEvents(ctx context.Context, handler func(context.Context, domain.IndexEvent) error) error {
	sub, err := q.conn.Subscribe(q.subject, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		event, err := decodeIndexEvent(msg.Data)
		if err != nil {
			slog.Warn("index_event_dropped", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := q.handle(handlerCtx, event, handler); err != nil {
			slog.Error("index_event_failed",
				"kind", event.Kind,
				"ids", len(event.IDs),
				"error", err,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) handle(ctx context.Context, event domain.IndexEvent, handler func(context.Context, domain.IndexEvent) error) error {
	return q.executor.Execute(ctx, "index_event.handle", func(ctx context.Context) error {
		return handler(ctx, event)
	}, classifyHandlerError)
}

func encodeIndexEvent(event domain.IndexEvent) ([]byte, error) {
	if len(event.IDs) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode index event", errors.New("no ids"))
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal index event: %w", err)
	}
	return payload, nil
}

func decodeIndexEvent(data []byte) (domain.IndexEvent, error) {
	var event domain.IndexEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.IndexEvent{}, fmt.Errorf("decode index event: %w", err)
	}
	switch event.Kind {
	case domain.IndexEventSlackMessage, domain.IndexEventDocumentChunk:
	default:
		return domain.IndexEvent{}, fmt.Errorf("decode index event: unknown kind %q", event.Kind)
	}
	return event, nil
}
