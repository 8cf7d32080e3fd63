// Package gather fetches market data from external providers and persists it
// to local storage.
package gather

import "context"

// Gatherer is a runnable data-collection job.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string

	// Run executes the job until completion or context cancellation.
	Run(ctx context.Context) error
}
