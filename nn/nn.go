// Package nn provides evaluator backends for the search engine: a
// uniform stub for tests and benchmarks, and an HTTP client for a
// remote batch-inference server. All backends reject oversized batches
// before any processing.
package nn

import (
	"errors"
	"fmt"
)

var ErrBatchTooLarge = errors.New("batch larger than evaluator maximum")

func checkBatch(n, max int) error {
	if n > max {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, n, max)
	}
	return nil
}
