// Package weblog wraps controller calls and logs their lifecycle: the call
// target and arguments, a snapshot of the request parameters and session,
// the returned value, arithmetic failures and completion.
package weblog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Proceed invokes the wrapped handler.
type Proceed func(ctx context.Context) (any, error)

// Outcome labels reported to an Observer.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeArithmetic = "arithmetic"
)

// Observer receives one outcome per intercepted call.
type Observer interface {
	ObserveCall(typeName, method, outcome string, elapsed time.Duration)
}

// Interceptor logs intercepted calls. It holds no per-call state and is safe
// for concurrent use.
type Interceptor struct {
	selector      Selector
	logger        *slog.Logger
	tracePrefixes []string
	errorFilter   func(error) bool
	observer      Observer
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithLogger sets the logging sink. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ic *Interceptor) {
		if l != nil {
			ic.logger = l
		}
	}
}

// WithTracePrefixes sets the method-name prefixes whose first argument is
// logged as "id" at debug level before the call.
func WithTracePrefixes(prefixes ...string) Option {
	return func(ic *Interceptor) {
		ic.tracePrefixes = ic.tracePrefixes[:0]
		for _, p := range prefixes {
			if p = strings.TrimSpace(p); p != "" {
				ic.tracePrefixes = append(ic.tracePrefixes, p)
			}
		}
	}
}

// WithErrorFilter replaces the predicate selecting which errors the error
// advice logs. The default logs ArithmeticError only.
func WithErrorFilter(f func(error) bool) Option {
	return func(ic *Interceptor) {
		if f != nil {
			ic.errorFilter = f
		}
	}
}

// WithObserver reports call outcomes to o.
func WithObserver(o Observer) Option {
	return func(ic *Interceptor) { ic.observer = o }
}

// New returns an interceptor for calls matched by sel.
func New(sel Selector, opts ...Option) *Interceptor {
	ic := &Interceptor{
		selector:      sel,
		logger:        slog.Default(),
		tracePrefixes: []string{"FindByID"},
		errorFilter:   IsArithmetic,
	}
	for _, opt := range opts {
		opt(ic)
	}
	return ic
}

// Around runs proceed once. Matched calls are logged before, on success or
// arithmetic failure, and after. The result and error of proceed are returned
// unchanged.
func (ic *Interceptor) Around(ctx context.Context, call Call, proceed Proceed) (any, error) {
	if ic == nil || !ic.selector.Match(call.Type, call.Method) {
		return proceed(ctx)
	}
	if call.Request == nil {
		return nil, fmt.Errorf("%s: %w", call.Target(), ErrNoRequest)
	}

	log := ic.logger.With("call_id", call.ID)
	log.InfoContext(ctx, "around",
		"target", call.Target(),
		"args", formatArgs(call.Args),
	)

	result, err := ic.advise(ctx, log, call, proceed)
	if err != nil {
		return result, err
	}

	log.InfoContext(ctx, "around done", "target", call.Target())
	return result, nil
}

// advise runs the before, returning, throwing and after advices around proceed.
func (ic *Interceptor) advise(ctx context.Context, log *slog.Logger, call Call, proceed Proceed) (result any, err error) {
	ic.before(ctx, log, call)

	start := time.Now()
	outcome := OutcomeError
	defer func() {
		log.InfoContext(ctx, "after", "target", call.Target())
		if ic.observer != nil {
			ic.observer.ObserveCall(call.Type, call.Method, outcome, time.Since(start))
		}
	}()

	result, err = proceed(ctx)
	if err != nil {
		if ic.errorFilter(err) {
			outcome = OutcomeArithmetic
			log.InfoContext(ctx, "after throwing",
				"args", formatArgs(call.Args),
				"err", err.Error(),
			)
		}
		return result, err
	}

	outcome = OutcomeOK
	log.InfoContext(ctx, "after returning",
		"result", formatResult(result),
		"args", formatArgs(call.Args),
	)
	return result, nil
}

func (ic *Interceptor) before(ctx context.Context, log *slog.Logger, call Call) {
	req := call.Request
	log.InfoContext(ctx, "before",
		"args", formatArgs(call.Args),
		"method", call.Method,
		"type", call.Type,
		"http_method", req.Method,
		"path", req.Path,
		"params", req.Params,
		"params_raw", req.rawJSON(),
		"session", req.Session,
	)

	if len(call.Args) == 0 {
		return
	}
	for _, p := range ic.tracePrefixes {
		if strings.HasPrefix(call.Method, p) {
			log.DebugContext(ctx, "arg trace", "method", call.Method, "id", call.Args[0])
			return
		}
	}
}

// Invoke runs fn through ic and returns its typed result.
func Invoke[T any](ctx context.Context, ic *Interceptor, call Call, fn func(context.Context) (T, error)) (T, error) {
	res, err := ic.Around(ctx, call, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	v, _ := res.(T)
	return v, err
}

// Run is Invoke for handlers without a result.
func Run(ctx context.Context, ic *Interceptor, call Call, fn func(context.Context) error) error {
	_, err := ic.Around(ctx, call, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}
