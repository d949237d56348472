// Package progress carries batch-level completion reports from long-running
// pipeline stages to interested callers.
package progress

// Observer receives progress for one analysis run. TotalKnown fires once,
// before the first batch; Progress fires after every batch with the
// cumulative number of items handled. Neither fires for an empty run.
type Observer interface {
	TotalKnown(total int)
	Progress(done, total int)
}

// Funcs adapts plain functions to the Observer interface. Nil fields are
// skipped.
type Funcs struct {
	OnTotalKnown func(total int)
	OnProgress   func(done, total int)
}

func (f Funcs) TotalKnown(total int) {
	if f.OnTotalKnown != nil {
		f.OnTotalKnown(total)
	}
}

func (f Funcs) Progress(done, total int) {
	if f.OnProgress != nil {
		f.OnProgress(done, total)
	}
}
