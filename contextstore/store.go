// Package contextstore abstracts the remote context/entity store consumed by
// the rule-evaluation pipeline. The store is an external collaborator: this
// package defines the tenant-scoped contract and an HTTP client for it.
package contextstore

import (
	"context"

	"github.com/c360/contextrules/types"
)

// Patch is a partial merge-patch body: property key to sub-field updates.
// Each call targets exactly one metadata sub-property's sub-fields; the store
// applies it atomically at field level, never rewriting the whole entity.
type Patch map[string]map[string]any

// Session is a tenant-bound view of the store. One session is created per
// inbound message; sessions are not shared across concurrent handlers.
//
// Lookups return (nil, nil) when the referenced record does not exist.
// Absence is a normal, loggable skip condition, not an error.
type Session interface {
	// Tenant returns the scope this session is bound to; empty for default.
	Tenant() string

	// GetEntity fetches an entity by id.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// GetLogRule fetches an entity by id and decodes it as a log rule.
	GetLogRule(ctx context.Context, id string) (*types.LogRule, error)

	// GetSubscription fetches a subscription by id.
	GetSubscription(ctx context.Context, id string) (*types.Subscription, error)

	// PatchEntity applies a partial merge-patch to an entity. Transient
	// backend failures classify as errors.ErrStoreUnavailable, semantic
	// rejections as errors.ErrStoreRejected or errors.ErrEntityNotFound.
	PatchEntity(ctx context.Context, id string, patch Patch) error
}

// Store produces tenant-scoped sessions.
type Store interface {
	Session(tenant string) Session
}
