// Package memory provides a map-backed catalog.Store. It backs the
// importer tests and small dry runs; it is not safe for concurrent use,
// matching the importer's single-writer model.
package memory

import (
	"context"
	"fmt"

	"catalog-migrator/internal/domain/catalog"
	"catalog-migrator/internal/pkg/apperrors"
)

type Store struct {
	refs  map[catalog.ReferenceKind]map[string]*catalog.Reference
	users map[string]*catalog.User
	items map[string]*catalog.Item
	roles map[string]map[string]bool
}

var _ catalog.Store = (*Store)(nil)

func NewStore() *Store {
	refs := make(map[catalog.ReferenceKind]map[string]*catalog.Reference, len(catalog.Kinds))
	for _, kind := range catalog.Kinds {
		refs[kind] = make(map[string]*catalog.Reference)
	}
	return &Store{
		refs:  refs,
		users: make(map[string]*catalog.User),
		items: make(map[string]*catalog.Item),
		roles: make(map[string]map[string]bool),
	}
}

func (s *Store) LookupReference(_ context.Context, kind catalog.ReferenceKind, name string) (*catalog.Reference, error) {
	ref, ok := s.refs[kind][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", apperrors.ErrNotFound, kind, name)
	}
	copied := *ref
	return &copied, nil
}

func (s *Store) ResolveReference(ctx context.Context, kind catalog.ReferenceKind, name string, defaults catalog.Attributes) (*catalog.Reference, error) {
	if ref, err := s.LookupReference(ctx, kind, name); err == nil {
		return ref, nil
	}
	ref := &catalog.Reference{Kind: kind, Name: name}
	defaults.ApplyTo(ref)
	s.refs[kind][name] = ref
	copied := *ref
	return &copied, nil
}

func (s *Store) UpsertReference(_ context.Context, kind catalog.ReferenceKind, name string, attrs catalog.Attributes) (*catalog.Reference, error) {
	ref, ok := s.refs[kind][name]
	if !ok {
		ref = &catalog.Reference{Kind: kind, Name: name}
		s.refs[kind][name] = ref
	}
	attrs.ApplyTo(ref)
	copied := *ref
	return &copied, nil
}

func userKey(name, group string) string {
	return name + "\x00" + group
}

func (s *Store) GetUser(_ context.Context, name, group string) (*catalog.User, error) {
	u, ok := s.users[userKey(name, group)]
	if !ok {
		return nil, fmt.Errorf("%w: user %q in group %q", apperrors.ErrNotFound, name, group)
	}
	copied := *u
	return &copied, nil
}

func (s *Store) UpsertUser(_ context.Context, u *catalog.User) error {
	copied := *u
	s.users[userKey(u.Name, u.Group)] = &copied
	return nil
}

func (s *Store) GetItem(_ context.Context, accession string) (*catalog.Item, error) {
	item, ok := s.items[accession]
	if !ok {
		return nil, fmt.Errorf("%w: item %q", apperrors.ErrNotFound, accession)
	}
	return cloneItem(item), nil
}

func (s *Store) PutItem(_ context.Context, item *catalog.Item) error {
	s.items[item.Accession] = cloneItem(item)
	return nil
}

func (s *Store) GrantRole(ctx context.Context, userName, roleName string) (bool, error) {
	var found *catalog.User
	for _, u := range s.users {
		if u.Name == userName {
			found = u
			break
		}
	}
	if found == nil {
		return false, fmt.Errorf("%w: user %q", apperrors.ErrNotFound, userName)
	}

	if _, err := s.ResolveReference(ctx, catalog.KindUserRole, roleName, catalog.Attributes{}); err != nil {
		return false, err
	}

	key := userKey(found.Name, found.Group)
	if s.roles[key] == nil {
		s.roles[key] = make(map[string]bool)
	}
	if s.roles[key][roleName] {
		return false, nil
	}
	s.roles[key][roleName] = true
	return true, nil
}

func cloneItem(item *catalog.Item) *catalog.Item {
	copied := *item
	if item.BorrowCurrent != nil {
		record := *item.BorrowCurrent
		copied.BorrowCurrent = &record
	}
	return &copied
}
