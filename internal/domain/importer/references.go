package importer

import (
	"context"
	"fmt"
	"strings"

	"catalog-migrator/internal/domain/catalog"
	"catalog-migrator/internal/pkg/apperrors"
)

// userGroupHeader is the exact header the group export must carry. A
// mismatch means the legacy export format changed and must not be
// silently tolerated.
var userGroupHeader = []string{"GroupID", "GroupName"}

// ImportUserGroups imports the group export. The file is positional:
// after the validated header, each record is (GroupID, GroupName). A
// wrong header fails this file's import; nothing else does.
func (im *Importer) ImportUserGroups(ctx context.Context, src RecordSource, sum *Summary) error {
	header, err := src.Next()
	if err != nil {
		return fmt.Errorf("reading user group header: %w", err)
	}
	if len(header) != len(userGroupHeader) || header[0] != userGroupHeader[0] || header[1] != userGroupHeader[1] {
		return fmt.Errorf("%w: user group file header must be %v, got %v", apperrors.ErrValidation, userGroupHeader, header)
	}

	return im.eachRecord(ctx, src, sum, func(rec []string) error {
		if len(rec) < 2 {
			return fmt.Errorf("%w: expected (GroupID, GroupName), got %d fields", apperrors.ErrValidation, len(rec))
		}
		position := strings.TrimSpace(rec[0])
		name := strings.TrimSpace(rec[1])
		_, err := im.store.UpsertReference(ctx, catalog.KindUserGroup, name, catalog.Attributes{Position: &position})
		return err
	})
}

// ImportUsers imports the patron export. The user's group is resolved
// or created; the username is derived from name and group, lower-cased
// and bounded.
func (im *Importer) ImportUsers(ctx context.Context, src RowSource, sum *Summary) error {
	return im.eachRow(ctx, src, sum, func(row Row) error {
		group, err := im.store.ResolveReference(ctx, catalog.KindUserGroup, strings.TrimSpace(row["GroupName"]), catalog.Attributes{})
		if err != nil {
			return err
		}

		name := strings.TrimSpace(row["UserName"])
		var email *string
		if e := strings.TrimSpace(row["Email"]); e != "" {
			email = &e
		}

		return im.store.UpsertUser(ctx, &catalog.User{
			Name:     name,
			Group:    group.Name,
			Email:    email,
			Username: Truncate(strings.ToLower(name+"."+group.Name), UsernameMaxLen),
		})
	})
}

// ImportCurrencies imports the currency export; the symbol is the
// bounded currency name itself, as in the legacy data.
func (im *Importer) ImportCurrencies(ctx context.Context, src RowSource, sum *Summary) error {
	return im.eachRow(ctx, src, sum, func(row Row) error {
		name := strings.TrimSpace(row["Currency"])
		symbol := Truncate(name, SymbolMaxLen)
		_, err := im.store.UpsertReference(ctx, catalog.KindCurrency, name, catalog.Attributes{Symbol: &symbol})
		return err
	})
}

// ImportPublishers imports the publisher export.
func (im *Importer) ImportPublishers(ctx context.Context, src RowSource, sum *Summary) error {
	return im.eachRow(ctx, src, sum, func(row Row) error {
		name := strings.TrimSpace(row["Publisher"])
		_, err := im.store.UpsertReference(ctx, catalog.KindPublisher, name, catalog.Attributes{})
		return err
	})
}

// ImportPublishPlaces imports the place-of-publication export.
func (im *Importer) ImportPublishPlaces(ctx context.Context, src RowSource, sum *Summary) error {
	return im.eachRow(ctx, src, sum, func(row Row) error {
		name := strings.TrimSpace(row["Place of Publication"])
		_, err := im.store.UpsertReference(ctx, catalog.KindPublishPlace, name, catalog.Attributes{})
		return err
	})
}

// ImportLocations imports the campus location export, including the
// flag that blocks borrowing from that location.
func (im *Importer) ImportLocations(ctx context.Context, src RowSource, sum *Summary) error {
	return im.eachRow(ctx, src, sum, func(row Row) error {
		name := strings.TrimSpace(row["Location"])
		prevent := ParseBoolFlag(row["PreventBorrow"])
		_, err := im.store.UpsertReference(ctx, catalog.KindCampusLocation, name, catalog.Attributes{PreventBorrowing: &prevent})
		return err
	})
}
