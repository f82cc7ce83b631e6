package fn

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "herbid/pkg/fn"

// Stage is one step of a fallback chain.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// PanicError is returned by a RecoverStage whose stage panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("stage panicked: %v", e.Value) }

// RecoverStage turns a panic inside stage into a failed Result so that a
// faulty collaborator only fails its own step.
func RecoverStage[In, Out any](stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) (res Result[Out]) {
		defer func() {
			if v := recover(); v != nil {
				res = Err[Out](&PanicError{Value: v})
			}
		}()
		return stage(ctx, in)
	}
}

// TracedStage runs stage inside a span named name. Failures are recorded on
// the span and the span carries a stage.ok attribute.
func TracedStage[In, Out any](name string, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		defer span.End()
		result := stage(ctx, in)
		span.SetAttributes(attribute.Bool("stage.ok", result.IsOk()))
		if result.IsErr() {
			_, err := result.Unwrap()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return result
	}
}
