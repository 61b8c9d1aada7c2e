package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/sumflow/internal/core/domain"
	"github.com/kirillkom/sumflow/internal/core/ports"
	"github.com/kirillkom/sumflow/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const queueGroup = "workers"

type Queue struct {
	conn        *nats.Conn
	subject     string
	executor    *resilience.Executor
	concurrency int
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	// Concurrency bounds how many task handlers run at once. Defaults to 1.
	Concurrency        int
	ResilienceExecutor *resilience.Executor
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
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	conn, err := nats.Connect(
		url,
		nats.Name("sumflow"),
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
		conn:        conn,
		subject:     subject,
		executor:    options.ResilienceExecutor,
		concurrency: concurrency,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func encodeTask(msg domain.TaskMessage) ([]byte, error) {
	if msg.TaskID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode task", errors.New("task id is required"))
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	return data, nil
}

func decodeTask(data []byte) (domain.TaskMessage, error) {
	var msg domain.TaskMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.TaskMessage{}, domain.WrapError(domain.ErrInvalidInput, "decode task", err)
	}
	if msg.TaskID == "" {
		return domain.TaskMessage{}, domain.WrapError(domain.ErrInvalidInput, "decode task", errors.New("task id is required"))
	}
	return msg, nil
}

func (q *Queue) PublishTask(ctx context.Context, msg domain.TaskMessage) error {
	data, err := encodeTask(msg)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, data); err != nil {
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
		return wrapPublishError(err)
	}
	return nil
}

// SubscribeTasks consumes tasks in the shared queue group until ctx is done.
// Processing errors are logged; the message is not redelivered. Deliveries
// that arrive after ctx is done are abandoned, never dropped silently.
func (q *Queue) SubscribeTasks(ctx context.Context, processor ports.TaskProcessor) error {
	var group errgroup.Group
	group.SetLimit(q.concurrency)

	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(m *nats.Msg) {
		msg, err := decodeTask(m.Data)
		if err != nil {
			slog.Error("task_decode_failed", "error", err, "bytes", len(m.Data))
			return
		}
		if ctx.Err() != nil {
			abandonTask(ctx, processor, msg)
			return
		}
		// Blocks while every slot is busy, holding further deliveries in the client buffer.
		group.Go(func() error {
			runTask(ctx, processor, msg)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	drainErr := sub.Drain()
	_ = group.Wait()
	if drainErr != nil {
		return fmt.Errorf("nats drain subscription: %w", drainErr)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

const (
	shutdownReason = "worker shutting down"
	abandonTimeout = 5 * time.Second
)

// runTask processes msg, or abandons it when shutdown began while it waited for a slot.
func runTask(ctx context.Context, processor ports.TaskProcessor, msg domain.TaskMessage) {
	if ctx.Err() != nil {
		abandonTask(ctx, processor, msg)
		return
	}
	if err := processor.Process(ctx, msg); err != nil {
		slog.Error("task_handler_failed", "task_id", msg.TaskID, "batch_id", msg.Source.BatchID, "error", err)
	}
}

func abandonTask(ctx context.Context, processor ports.TaskProcessor, msg domain.TaskMessage) {
	abandonCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
	defer cancel()
	if err := processor.Abandon(abandonCtx, msg, shutdownReason); err != nil {
		slog.Error("task_abandon_failed", "task_id", msg.TaskID, "batch_id", msg.Source.BatchID, "error", err)
		return
	}
	slog.Warn("task_abandoned", "task_id", msg.TaskID, "batch_id", msg.Source.BatchID, "reason", shutdownReason)
}
