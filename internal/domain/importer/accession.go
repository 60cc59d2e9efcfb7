package importer

import (
	"context"

	"catalog-migrator/internal/domain/catalog"
)

// Legacy category codes from the circulation export.
const (
	CategoryBook       = "1"
	CategoryPeriodical = "2"
)

var categoryItemTypes = map[string]string{
	CategoryBook:       "book",
	CategoryPeriodical: "periodical",
}

// AccessionRouter maps a legacy category code and raw accession number
// to the globally unique accession identifier used as the item key.
type AccessionRouter struct {
	resolver catalog.ReferenceResolver
	prefixes map[string]string
}

// NewAccessionRouter builds a router over the given resolver. prefixes
// maps item type names to the accession prefix each type gets on first
// creation; types missing from the table get an empty prefix.
func NewAccessionRouter(resolver catalog.ReferenceResolver, prefixes map[string]string) *AccessionRouter {
	copied := make(map[string]string, len(prefixes))
	for name, prefix := range prefixes {
		copied[name] = prefix
	}
	return &AccessionRouter{resolver: resolver, prefixes: copied}
}

// Route composes the accession identifier for a row. Category "1" maps
// to the book item type and "2" to periodical; any other code passes
// the raw accession through unprefixed. That fallback is deliberate:
// unknown categories in the legacy data were never namespaced, and a
// stable identifier matters more than a tidy one.
//
// The same composition runs when the item is created and when a later
// borrow row looks it up, so the identifier is stable across a run.
func (r *AccessionRouter) Route(ctx context.Context, category, rawAccession string) (string, error) {
	typeName, ok := categoryItemTypes[category]
	if !ok {
		return rawAccession, nil
	}

	defaultPrefix := r.prefixes[typeName]
	itemType, err := r.resolver.ResolveReference(ctx, catalog.KindItemType, typeName, catalog.Attributes{
		Prefix: &defaultPrefix,
	})
	if err != nil {
		return "", err
	}

	if itemType.Prefix == "" {
		return rawAccession, nil
	}
	return itemType.Prefix + ":" + rawAccession, nil
}
