package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// BatchSize is the fixed number of rows dispatched concurrently. Batches
// run sequentially, so at most BatchSize create calls are in flight at
// any instant.
const BatchSize = 5

// Creator issues one remote create call for a mapped product.
type Creator interface {
	Create(ctx context.Context, product *MappedProduct) error
}

// ProgressFunc is invoked after each batch settles.
type ProgressFunc func(Progress)

// Dispatcher partitions rows into fixed-size batches, runs each batch's
// row operations concurrently behind a join, and aggregates per-row
// outcomes into a Summary. A single row's failure never aborts its batch
// or the run; only file-level errors (handled upstream by the reader)
// abort an import.
type Dispatcher struct {
	creator    Creator
	batchSize  int
	onProgress ProgressFunc
}

// NewDispatcher creates a dispatcher with the fixed batch size.
func NewDispatcher(creator Creator, onProgress ProgressFunc) *Dispatcher {
	return &Dispatcher{
		creator:    creator,
		batchSize:  BatchSize,
		onProgress: onProgress,
	}
}

// Run processes all rows and returns the terminal summary. Cancelling ctx
// stops the run cooperatively: the flag is observed at batch boundaries
// only, so rows already in flight settle and are counted, and no rows
// from later batches are dispatched.
func (d *Dispatcher) Run(ctx context.Context, rows []RawRow, lookups Lookups) Summary {
	total := len(rows)
	summary := Summary{Errors: make([]RowError, 0)}

	// In-flight creates are allowed to finish even after cancellation, so
	// the create context carries values but not the run's cancellation.
	createCtx := context.WithoutCancel(ctx)

	var mu sync.Mutex

	for start := 0; start < total; start += d.batchSize {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		end := start + d.batchSize
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		for _, row := range rows[start:end] {
			wg.Add(1)
			go func(row RawRow) {
				defer wg.Done()

				outcome := Map(row, lookups)
				if outcome.Kind == OutcomeError {
					mu.Lock()
					summary.Errors = append(summary.Errors, *outcome.Err)
					mu.Unlock()
					return
				}

				if err := d.creator.Create(createCtx, outcome.Product); err != nil {
					mu.Lock()
					summary.Errors = append(summary.Errors, RowError{
						Row:     row.Number,
						Product: outcome.Product.Name,
						Error:   createErrorMessage(err),
					})
					mu.Unlock()
					return
				}

				mu.Lock()
				summary.SuccessCount++
				mu.Unlock()
			}(row)
		}
		wg.Wait()

		if d.onProgress != nil {
			current := end
			d.onProgress(Progress{
				Current: current,
				Total:   total,
				Message: fmt.Sprintf("processed %d of %d", current, total),
			})
		}
	}

	// Completion order races freely inside a batch; sort for a stable
	// operator-facing breakdown.
	sort.Slice(summary.Errors, func(i, j int) bool {
		return summary.Errors[i].Row < summary.Errors[j].Row
	})

	return summary
}

// createErrorMessage keeps the server-provided message when there is one
// and falls back to a generic string otherwise.
func createErrorMessage(err error) string {
	if err == nil || strings.TrimSpace(err.Error()) == "" {
		return "failed to create product"
	}
	return err.Error()
}
