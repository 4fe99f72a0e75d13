package repository

import (
	"context"

	"github.com/user/storewatch/internal/entity"
)

// StoreProber defines the contract for checking a store over the network.
type StoreProber interface {
	// Check performs one classified GET. Failures are folded into the result label.
	Check(ctx context.Context, url string) entity.ProbeResult
	// Verify checks and, when the result is DEAD, waits and returns a second check.
	Verify(ctx context.Context, url string) entity.ProbeResult
	// Pause waits the pacing delay between two checks of a batch.
	Pause(ctx context.Context) error
}
