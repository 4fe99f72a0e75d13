package repository

import (
	"context"
	"errors"

	"github.com/user/storewatch/internal/entity"
)

// ErrNotConfigured is returned by a notifier without delivery credentials.
var ErrNotConfigured = errors.New("notifier not configured")

// ChangeNotifier delivers status alerts. Empty input succeeds without sending anything.
type ChangeNotifier interface {
	NotifyDead(ctx context.Context, urls []string) error
	NotifyChanges(ctx context.Context, changes []entity.StatusChange) error
	// TestConnection sends a short message to confirm delivery works.
	TestConnection(ctx context.Context) error
	Enabled() bool
}
