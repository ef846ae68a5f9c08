package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	applogger "FinCast/pkg/logger"
)

// Delivery is one handling attempt of a fetched message.
type Delivery struct {
	Topic   string
	Msg     kafka.Message
	Attempt int
	Started time.Time
}

// ConsumerHook observes message handling. An error from Before skips the
// handler for that attempt and counts as a failed attempt. Failed runs once
// per message that is given up on.
type ConsumerHook interface {
	Before(ctx context.Context, d *Delivery) (context.Context, error)
	After(ctx context.Context, d *Delivery, err error)
	Failed(ctx context.Context, d *Delivery, err error)
}

// ErrHookPanic wraps a panic raised inside a hook.
var ErrHookPanic = errors.New("kafka: hook panicked")

// HookFuncs adapts plain functions; nil ones are skipped.
type HookFuncs struct {
	OnBefore func(context.Context, *Delivery) (context.Context, error)
	OnAfter  func(context.Context, *Delivery, error)
	OnFailed func(context.Context, *Delivery, error)
}

func (h HookFuncs) Before(ctx context.Context, d *Delivery) (context.Context, error) {
	if h.OnBefore == nil {
		return ctx, nil
	}
	return h.OnBefore(ctx, d)
}

func (h HookFuncs) After(ctx context.Context, d *Delivery, err error) {
	if h.OnAfter != nil {
		h.OnAfter(ctx, d, err)
	}
}

func (h HookFuncs) Failed(ctx context.Context, d *Delivery, err error) {
	if h.OnFailed != nil {
		h.OnFailed(ctx, d, err)
	}
}

// hookChain runs Before in order, After in reverse and Failed in order.
// A panicking hook never takes the worker down.
type hookChain []ConsumerHook

func chainHooks(hooks ...ConsumerHook) hookChain {
	out := make(hookChain, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (c hookChain) Before(ctx context.Context, d *Delivery) (next context.Context, err error) {
	for _, h := range c {
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrHookPanic, r)
				}
			}()
			next, err = h.Before(ctx, d)
		}()
		if err != nil {
			return ctx, err
		}
		ctx = next
	}
	return ctx, nil
}

func (c hookChain) After(ctx context.Context, d *Delivery, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		func() {
			defer func() { _ = recover() }()
			c[i].After(ctx, d, err)
		}()
	}
}

func (c hookChain) Failed(ctx context.Context, d *Delivery, err error) {
	for _, h := range c {
		func() {
			defer func() { _ = recover() }()
			h.Failed(ctx, d, err)
		}()
	}
}

const traceHeader = "trace_id"

type traceKey struct{}

// ContextWithTraceID stores id for TraceIDFrom. Empty ids are ignored.
func ContextWithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// ExtractTraceID returns the trace_id header of msg, if any.
func ExtractTraceID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == traceHeader {
			return string(h.Value)
		}
	}
	return ""
}

// TraceHook puts the message's trace_id header into the handler context.
func TraceHook() ConsumerHook {
	return HookFuncs{OnBefore: func(ctx context.Context, d *Delivery) (context.Context, error) {
		return ContextWithTraceID(ctx, ExtractTraceID(d.Msg)), nil
	}}
}

// LoggingHook logs every attempt and every abandoned message.
func LoggingHook(l *applogger.Logger) ConsumerHook {
	fields := func(ctx context.Context, d *Delivery) []applogger.Field {
		return []applogger.Field{
			applogger.String("topic", d.Topic),
			applogger.Int("partition", d.Msg.Partition),
			applogger.Int64("offset", d.Msg.Offset),
			applogger.Int("attempt", d.Attempt),
			applogger.String("trace_id", TraceIDFrom(ctx)),
			applogger.Duration("took_ms", time.Since(d.Started)),
		}
	}
	return HookFuncs{
		OnAfter: func(ctx context.Context, d *Delivery, err error) {
			if err != nil {
				l.Warn("kafka attempt failed", append(fields(ctx, d), applogger.Error(err))...)
				return
			}
			l.Debug("kafka message handled", fields(ctx, d)...)
		},
		OnFailed: func(ctx context.Context, d *Delivery, err error) {
			l.Error("kafka message abandoned", append(fields(ctx, d), applogger.Error(err))...)
		},
	}
}
