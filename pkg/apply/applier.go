// Package apply executes an execution plan against a live RPC client:
// sequential dispatch in plan order, temporary-identifier resolution, per
// operation outcome reporting, and a dry-run mode that issues no mutations.
package apply

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/odrift/odrift/pkg/plan"
	"github.com/odrift/odrift/pkg/rpc"
)

// OperationResult is the outcome of one dispatched operation.
type OperationResult struct {
	// Operation is the plan step this result belongs to.
	Operation plan.Operation `json:"operation"`

	// Success is true when the server accepted the operation (or the
	// dry-run walk simulated it).
	Success bool `json:"success"`

	// Duration is the operation wall-clock time.
	Duration time.Duration `json:"duration"`

	// ActualID is the server-assigned id for a create, or the parsed
	// integer id for updates and deletes. Negative under dry-run creates.
	ActualID int64 `json:"actual_id,omitempty"`

	// Error is the failure, if any.
	Error error `json:"-"`

	// ErrorMessage mirrors Error for JSON consumers.
	ErrorMessage string `json:"error,omitempty"`
}

// Result reports a whole apply.
type Result struct {
	// Operations holds one result per attempted operation, in plan order.
	Operations []OperationResult `json:"operations"`

	// Applied is the number of successful operations.
	Applied int `json:"applied"`

	// Failed is the number of failed operations. Under a pre-flight
	// rejection it equals the plan's operation count.
	Failed int `json:"failed"`

	// Total is the number of operations the plan carried.
	Total int `json:"total"`

	// Duration is wall-clock from start to completion or early exit.
	Duration time.Duration `json:"duration"`

	// IDMapping maps each temporary identifier to its resolved integer id.
	IDMapping map[string]int64 `json:"id_mapping,omitempty"`

	// Success is true iff no operation failed.
	Success bool `json:"success"`

	// Errors lists failure messages in occurrence order.
	Errors []string `json:"errors,omitempty"`
}

// ProgressFunc is invoked after each operation completes, before the next
// one begins.
type ProgressFunc func(current, total int, operationID string)

// CompleteFunc is invoked with each operation's result as soon as its
// outcome is decided.
type CompleteFunc func(result OperationResult)

// Options refine an apply.
type Options struct {
	// DryRun walks the plan without issuing any RPC mutation. Creates get
	// synthetic negative ids so later references still resolve.
	DryRun bool

	// StopOnError aborts at the first failure. Defaults to true.
	StopOnError bool

	// Context is a base server context shallow-merged under each
	// operation's own context (the operation wins per key).
	Context rpc.ValueMap

	// Validate runs the pre-flight id-form checks. Defaults to true.
	Validate bool

	// MaxOperations caps the plan size at apply time. Zero means
	// plan.DefaultMaxOperations.
	MaxOperations int

	// OnProgress and OnOperationComplete are optional callbacks.
	OnProgress          ProgressFunc
	OnOperationComplete CompleteFunc
}

// DefaultOptions returns the options Apply uses when given nil.
func DefaultOptions() Options {
	return Options{
		StopOnError:   true,
		Validate:      true,
		MaxOperations: plan.DefaultMaxOperations,
	}
}

// Applier executes plans. A single Applier may run plans concurrently; each
// apply keeps its own in-flight id mapping.
type Applier struct {
	logger zerolog.Logger
	tracer trace.Tracer
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithLogger sets the applier logger.
func WithLogger(logger zerolog.Logger) ApplierOption {
	return func(a *Applier) {
		a.logger = logger.With().Str("component", "applier").Logger()
	}
}

// NewApplier creates an Applier.
func NewApplier(opts ...ApplierOption) *Applier {
	a := &Applier{
		logger: zerolog.Nop(),
		tracer: otel.Tracer("odrift/apply"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply executes the plan sequentially in plan order. Atomicity is per
// operation; there is no multi-operation rollback. All failures are
// reported inside the Result rather than returned.
func (a *Applier) Apply(ctx context.Context, p *plan.ExecutionPlan, client rpc.Client, opts *Options) *Result {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
		if o.MaxOperations == 0 {
			o.MaxOperations = plan.DefaultMaxOperations
		}
	}

	ctx, span := a.tracer.Start(ctx, "apply.plan", trace.WithAttributes(
		attribute.String("plan.id", p.ID),
		attribute.Int("plan.operations", len(p.Operations)),
		attribute.Bool("apply.dry_run", o.DryRun),
	))
	defer span.End()

	start := time.Now()
	result := &Result{
		Total:     len(p.Operations),
		IDMapping: make(map[string]int64),
	}

	if p.Summary.HasErrors {
		return failAll(result, start, fmt.Sprintf("plan was rejected by validation: %v", p.Summary.Errors))
	}
	if len(p.Operations) > o.MaxOperations {
		return failAll(result, start, fmt.Sprintf(
			"plan has %d operations, exceeding the maximum of %d", len(p.Operations), o.MaxOperations))
	}
	if o.Validate {
		if msg := preflight(p.Operations); msg != "" {
			return failAll(result, start, msg)
		}
	}

	dryRunSeq := int64(0)
	total := len(p.Operations)

	for i, op := range p.Operations {
		select {
		case <-ctx.Done():
			// Remaining operations are not attempted.
			result.Errors = append(result.Errors, fmt.Sprintf("apply cancelled: %v", ctx.Err()))
			result.Duration = time.Since(start)
			result.Success = result.Failed == 0 && len(result.Errors) == 0
			return result
		default:
		}

		opResult := a.applyOne(ctx, op, client, &o, result.IDMapping, &dryRunSeq)
		result.Operations = append(result.Operations, opResult)

		if opResult.Success {
			result.Applied++
		} else {
			result.Failed++
			result.Errors = append(result.Errors, opResult.ErrorMessage)
		}

		if o.OnOperationComplete != nil {
			o.OnOperationComplete(opResult)
		}
		if o.OnProgress != nil {
			o.OnProgress(i+1, total, op.ID)
		}

		if !opResult.Success && o.StopOnError {
			break
		}
	}

	result.Duration = time.Since(start)
	result.Success = result.Failed == 0
	a.logger.Info().
		Str("plan_id", p.ID).
		Int("applied", result.Applied).
		Int("failed", result.Failed).
		Bool("dry_run", o.DryRun).
		Dur("duration", result.Duration).
		Msg("apply finished")
	return result
}

// applyOne resolves references, dispatches one operation, and times it.
func (a *Applier) applyOne(
	ctx context.Context,
	op plan.Operation,
	client rpc.Client,
	opts *Options,
	idMapping map[string]int64,
	dryRunSeq *int64,
) OperationResult {
	start := time.Now()
	res := OperationResult{Operation: op}

	values, missing := plan.RewriteTempRefs(op.Values, idMapping)
	if len(missing) > 0 {
		return fail(res, start, rpc.NewValidationError(fmt.Sprintf(
			"operation %s references unresolved temporary id(s) %v", op.ID, missing)).WithCode(rpc.ErrCodeBadReference))
	}
	resolved, _ := values.(rpc.ValueMap)

	opctx := mergeContext(opts.Context, op.Context)

	if opts.DryRun {
		// Same walk, no RPC. Synthetic negative ids keep later references
		// within the plan resolvable.
		switch op.Type {
		case plan.OpCreate:
			*dryRunSeq--
			idMapping[op.ID] = *dryRunSeq
			res.ActualID = *dryRunSeq
		case plan.OpUpdate, plan.OpDelete:
			_, id, err := rpc.ParseCanonicalID(op.ID)
			if err != nil {
				return fail(res, start, err)
			}
			res.ActualID = id
		}
		res.Success = true
		res.Duration = time.Since(start)
		return res
	}

	switch op.Type {
	case plan.OpCreate:
		newID, err := client.Create(ctx, op.Model, resolved, opctx)
		if err != nil {
			return fail(res, start, err)
		}
		idMapping[op.ID] = newID
		res.ActualID = newID

	case plan.OpUpdate:
		_, id, err := rpc.ParseCanonicalID(op.ID)
		if err != nil {
			return fail(res, start, err)
		}
		if _, err := client.Write(ctx, op.Model, []int64{id}, resolved, opctx); err != nil {
			return fail(res, start, err)
		}
		res.ActualID = id

	case plan.OpDelete:
		_, id, err := rpc.ParseCanonicalID(op.ID)
		if err != nil {
			return fail(res, start, err)
		}
		if _, err := client.Unlink(ctx, op.Model, []int64{id}); err != nil {
			return fail(res, start, err)
		}
		res.ActualID = id

	default:
		return fail(res, start, rpc.NewValidationError(fmt.Sprintf("unknown operation type %q", op.Type)))
	}

	res.Success = true
	res.Duration = time.Since(start)
	a.logger.Debug().
		Str("operation", op.ID).
		Str("type", string(op.Type)).
		Int64("actual_id", res.ActualID).
		Dur("duration", res.Duration).
		Msg("operation applied")
	return res
}

// preflight verifies the id-form invariant: creates carry temporary
// identifiers, updates and deletes carry the canonical integer form.
func preflight(ops []plan.Operation) string {
	for _, op := range ops {
		switch op.Type {
		case plan.OpCreate:
			if !rpc.IsTempID(op.ID) {
				return fmt.Sprintf("create operation %q must use a temporary identifier", op.ID)
			}
		case plan.OpUpdate, plan.OpDelete:
			if !rpc.IsCanonicalID(op.ID) {
				return fmt.Sprintf("%s operation %q must use the canonical <model>:<integer> id form", op.Type, op.ID)
			}
		default:
			return fmt.Sprintf("operation %q has unknown type %q", op.ID, op.Type)
		}
	}
	return ""
}

// mergeContext shallow-merges the base apply context under the operation's
// own context; the operation wins per key.
func mergeContext(base, op rpc.ValueMap) rpc.ValueMap {
	if len(base) == 0 && len(op) == 0 {
		return nil
	}
	merged := make(rpc.ValueMap, len(base)+len(op))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range op {
		merged[k] = v
	}
	return merged
}

func fail(res OperationResult, start time.Time, err error) OperationResult {
	res.Success = false
	res.Duration = time.Since(start)
	res.Error = err
	res.ErrorMessage = err.Error()
	return res
}

// failAll marks the whole apply as rejected up front: nothing applied,
// every operation counted as failed.
func failAll(result *Result, start time.Time, msg string) *Result {
	result.Failed = result.Total
	result.Errors = []string{msg}
	result.Duration = time.Since(start)
	result.Success = false
	return result
}
