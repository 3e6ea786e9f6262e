// Package source defines the live presence source consumed by the collector
// and provides the gateway-backed implementation plus the polling loop that
// feeds observations into the ledger.
package source

import (
	"context"

	"example.com/presence/internal/domain"
)

// Source is the live presence oracle. It answers what is true right now;
// history is derived from it by the diff engine and the reconciler.
type Source interface {
	// Observable reports whether the user is currently visible to the
	// source at all.
	Observable(ctx context.Context, userID string) (bool, error)
	// LiveSnapshot returns the user's current snapshot. Returns (nil, nil)
	// when the user is not observable.
	LiveSnapshot(ctx context.Context, userID string) (*domain.Snapshot, error)
	// ObservableUsers lists every currently observable user id.
	ObservableUsers(ctx context.Context) ([]string, error)
}
