package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"catalog-migrator/internal/domain/catalog"
	"catalog-migrator/internal/pkg/apperrors"
)

// ItemImporter builds or updates catalog items from accession register
// rows. Every row on this path is book-typed; the category-driven
// routing only applies to circulation rows.
type ItemImporter struct {
	store  catalog.Store
	router *AccessionRouter
	warn   warnFunc
}

func NewItemImporter(store catalog.Store, router *AccessionRouter, warn warnFunc) *ItemImporter {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &ItemImporter{store: store, router: router, warn: warn}
}

// UpsertItem reconciles one accession register row into the store.
// Missing reference entities (creator, publisher, place, currency,
// location) are created on the way as a deliberate byproduct.
func (im *ItemImporter) UpsertItem(ctx context.Context, row Row) (*catalog.Item, error) {
	accession, err := im.router.Route(ctx, CategoryBook, strings.TrimSpace(row["Accession"]))
	if err != nil {
		return nil, err
	}

	item, err := im.store.GetItem(ctx, accession)
	if errors.Is(err, apperrors.ErrNotFound) {
		item = &catalog.Item{Accession: accession}
	} else if err != nil {
		return nil, fmt.Errorf("looking up item %s: %w", accession, err)
	}

	item.CallNumber = Truncate(strings.TrimSpace(row["Call number"]), CallNumberMaxLen)
	item.Title = strings.TrimSpace(row["Title"])

	author, err := im.store.ResolveReference(ctx, catalog.KindCreator, strings.TrimSpace(row["Author"]), catalog.Attributes{})
	if err != nil {
		return nil, err
	}
	item.Author = author.Name

	publisher, err := im.store.ResolveReference(ctx, catalog.KindPublisher, strings.TrimSpace(row["Publisher"]), catalog.Attributes{})
	if err != nil {
		return nil, err
	}
	item.Publisher = publisher.Name

	place, err := im.store.ResolveReference(ctx, catalog.KindPublishPlace, strings.TrimSpace(row["Place of publication"]), catalog.Attributes{})
	if err != nil {
		return nil, err
	}
	item.PublishPlace = place.Name

	item.PublicationYear = ParseYear(row["Date of publication"])

	rawReceipt := strings.TrimSpace(row["Date of receipt"])
	item.ReceiptDate = ParseDate(rawReceipt, ReceiptDateLayouts)
	if item.ReceiptDate == nil && rawReceipt != "" {
		im.warn("unset receipt date for %s - %q: %q is not a valid date", item.Accession, item.Title, rawReceipt)
	}

	currency, err := im.store.ResolveReference(ctx, catalog.KindCurrency, strings.TrimSpace(row["Currency"]), catalog.Attributes{})
	if err != nil {
		return nil, err
	}
	item.Currency = currency.Name

	item.Price = ParseDecimal(row["Price"])
	item.Source = Truncate(strings.TrimSpace(row["Source"]), SourceMaxLen)

	location, err := im.store.ResolveReference(ctx, catalog.KindCampusLocation, strings.TrimSpace(row["Location"]), catalog.Attributes{})
	if err != nil {
		return nil, err
	}
	item.CampusLocation = location.Name

	if err := im.store.PutItem(ctx, item); err != nil {
		return nil, fmt.Errorf("saving item %s: %w", item.Accession, err)
	}
	return item, nil
}
