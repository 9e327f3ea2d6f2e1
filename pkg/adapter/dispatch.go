package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/toolbridge/toolbridge/pkg/governor"
	"github.com/toolbridge/toolbridge/pkg/journal"
	"github.com/toolbridge/toolbridge/pkg/toolcall"
)

// Journal receives one record per completed call. Recording is best effort;
// implementations must not fail the call.
type Journal interface {
	Record(ctx context.Context, rec journal.Record)
}

// DispatcherConfig wires a dispatcher to its adapter's collaborators.
type DispatcherConfig struct {
	Name     string // adapter name, used in logs and journal records
	Log      *slog.Logger
	Registry *Registry
	Governor *governor.Governor
	Timeout  time.Duration // per-call deadline
	Journal  Journal       // optional
}

// Dispatcher runs tool calls end to end: resolve, validate, admit, execute
// under deadline, and fold any failure into the result payload. A dispatch
// never panics outward and never returns an error; every outcome is a Result.
type Dispatcher struct {
	name     string
	log      *slog.Logger
	registry *Registry
	governor *governor.Governor
	timeout  time.Duration
	journal  Journal

	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("adapter: dispatcher needs a registry")
	}
	if cfg.Governor == nil {
		return nil, errors.New("adapter: dispatcher needs a governor")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("adapter: invalid call timeout %s", cfg.Timeout)
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	meter := otel.Meter("toolbridge/adapter")
	calls, err := meter.Int64Counter("toolbridge.calls",
		metric.WithDescription("Tool calls dispatched, by operation and outcome"))
	if err != nil {
		return nil, fmt.Errorf("adapter: create call counter: %w", err)
	}
	duration, err := meter.Float64Histogram("toolbridge.call.duration",
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("adapter: create duration histogram: %w", err)
	}

	return &Dispatcher{
		name:     cfg.Name,
		log:      cfg.Log,
		registry: cfg.Registry,
		governor: cfg.Governor,
		timeout:  cfg.Timeout,
		journal:  cfg.Journal,
		calls:    calls,
		duration: duration,
	}, nil
}

// Dispatch executes one call and always produces a Result. Failures travel
// inside the result payload with IsError set; the error never escapes.
func (d *Dispatcher) Dispatch(ctx context.Context, req *toolcall.Request) toolcall.Result {
	start := time.Now()
	payload, err := d.run(ctx, req)
	elapsed := time.Since(start)

	var res toolcall.Result
	if err != nil {
		res = toolcall.FailureFrom(req.CallID, err)
	} else {
		res = toolcall.Success(req.CallID, payload)
	}
	res.DurationMS = elapsed.Milliseconds()

	d.observe(ctx, req, err, start, elapsed)
	return res
}

func (d *Dispatcher) run(ctx context.Context, req *toolcall.Request) (any, error) {
	op := req.Operation()
	spec, ok := d.registry.Lookup(op)
	if !ok {
		return nil, &toolcall.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown operation %s", op)}
	}

	args, err := ValidateArgs(spec, req.Args)
	if err != nil {
		return nil, err
	}
	if spec.Validate != nil {
		if err := spec.Validate(args); err != nil {
			return nil, err
		}
	}

	// Admission happens after validation so malformed calls never spend quota.
	if err := d.governor.Check(spec.Category); err != nil {
		return nil, err
	}

	return governor.WithTimeout(ctx, d.timeout, func(ctx context.Context) (any, error) {
		return spec.Handler(ctx, args)
	})
}

func (d *Dispatcher) observe(ctx context.Context, req *toolcall.Request, err error, start time.Time, elapsed time.Duration) {
	op := req.Operation()
	outcome := classify(err)

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	d.calls.Add(ctx, 1, attrs)
	d.duration.Record(ctx, elapsed.Seconds(), attrs)

	if err != nil {
		d.log.Warn("call failed",
			"call_id", req.CallID,
			"operation", op,
			"caller", req.Caller,
			"outcome", outcome,
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
	} else {
		d.log.Info("call completed",
			"call_id", req.CallID,
			"operation", op,
			"caller", req.Caller,
			"duration_ms", elapsed.Milliseconds())
	}

	if d.journal == nil {
		return
	}
	rec := journal.Record{
		CallID:     req.CallID,
		Adapter:    d.name,
		Tool:       req.Tool,
		Action:     req.Action,
		Caller:     req.Caller,
		Outcome:    outcome,
		DurationMS: elapsed.Milliseconds(),
		ReceivedAt: start.UTC(),
	}
	if spec, ok := d.registry.Lookup(op); ok {
		rec.Category = spec.Category
	}
	if err != nil {
		rec.Error = err.Error()
	}
	d.journal.Record(ctx, rec)
}

// classify buckets an error for metrics, logs and the journal.
func classify(err error) string {
	if err == nil {
		return "success"
	}
	var ve *toolcall.ValidationError
	var rle *governor.RateLimitError
	var te *governor.TimeoutError
	var ue *toolcall.UpstreamError
	switch {
	case errors.As(err, &ve):
		return "validation_error"
	case errors.As(err, &rle):
		return "rate_limited"
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &ue):
		return "upstream_error"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
