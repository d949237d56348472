package sentiment

import (
	"context"
	"errors"
	"fmt"
)

// Engine scores item bodies in batches. Implementations must return exactly
// one payload per input text, in input order.
type Engine interface {
	// Name returns the engine identifier used for registry lookups.
	Name() string
	// AnalyzeMany scores a batch of texts. Blank texts yield the canonical
	// empty payload rather than an error.
	AnalyzeMany(ctx context.Context, texts []string) ([]Payload, error)
}

// InferenceError reports a failed batch inference call. Work committed
// before the failure stays committed; callers stop scheduling further
// batches.
type InferenceError struct {
	Engine string
	Err    error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("sentiment inference failed (engine %s): %v", e.Engine, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// AsInferenceError wraps err into an InferenceError attributed to the named
// engine, passing it through unchanged when it already is one.
func AsInferenceError(engine string, err error) *InferenceError {
	var inferenceErr *InferenceError
	if errors.As(err, &inferenceErr) {
		return inferenceErr
	}
	return &InferenceError{Engine: engine, Err: err}
}
