package catalog

import "context"

// ReferenceResolver is the get-or-create surface over the reference
// collections. Implementations key every collection by the entity's
// natural name; callers are expected to pre-trim whitespace.
type ReferenceResolver interface {
	// LookupReference returns the entity by natural key, or
	// apperrors.ErrNotFound. It never creates.
	LookupReference(ctx context.Context, kind ReferenceKind, name string) (*Reference, error)

	// ResolveReference returns the entity by natural key, creating it
	// with defaults applied if absent. An existing entity is returned
	// unchanged; repeated calls with the same key never create
	// duplicates.
	ResolveReference(ctx context.Context, kind ReferenceKind, name string, defaults Attributes) (*Reference, error)

	// UpsertReference creates the entity if absent and overwrites the
	// specified attributes whether or not it existed.
	UpsertReference(ctx context.Context, kind ReferenceKind, name string, attrs Attributes) (*Reference, error)
}

// UserStore persists patrons keyed by (name, group).
type UserStore interface {
	GetUser(ctx context.Context, name, group string) (*User, error)
	UpsertUser(ctx context.Context, u *User) error
}

// ItemStore persists catalog items keyed by accession.
type ItemStore interface {
	// GetItem returns the item by accession, or apperrors.ErrNotFound.
	GetItem(ctx context.Context, accession string) (*Item, error)
	// PutItem creates or fully overwrites the item.
	PutItem(ctx context.Context, item *Item) error
}

// Store is the full persistence surface the importer is wired against.
// Backends (postgres, mongodb, memory) implement it at the boundary.
type Store interface {
	ReferenceResolver
	UserStore
	ItemStore

	// GrantRole links the named user to a role, creating the role
	// reference if needed. The user is looked up by name alone, across
	// groups. Returns false when the user already held the role, and
	// apperrors.ErrNotFound when no such user exists.
	GrantRole(ctx context.Context, userName, roleName string) (bool, error)
}
