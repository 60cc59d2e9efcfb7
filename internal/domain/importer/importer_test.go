package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"catalog-migrator/internal/csvfile"
	"catalog-migrator/internal/domain/catalog"
	"catalog-migrator/internal/infrastructure/database/memory"
	"catalog-migrator/internal/pkg/apperrors"

	"github.com/stretchr/testify/assert"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func rowsOf(csv string) RowSource {
	return csvfile.NewRowReader(strings.NewReader(csv))
}

func recordsOf(csv string) RecordSource {
	return csvfile.NewRecordReader(strings.NewReader(csv))
}

func TestImportUserGroups(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts position by group name", func(t *testing.T) {
		store := memory.NewStore()
		im := New(store, testPrefixes, testLogger)
		sum := &Summary{File: "List_of_Groups.csv"}

		err := im.ImportUserGroups(ctx, recordsOf("GroupID,GroupName\n1,Staff\n2,Students\n"), sum)
		assert.NoError(t, err)
		assert.Equal(t, 2, sum.Imported)

		ref, err := store.LookupReference(ctx, catalog.KindUserGroup, "Staff")
		assert.NoError(t, err)
		assert.Equal(t, "1", ref.Position)
	})

	t.Run("re-import yields one entity with last values", func(t *testing.T) {
		store := memory.NewStore()
		im := New(store, testPrefixes, testLogger)

		for _, position := range []string{"1", "5"} {
			sum := &Summary{File: "List_of_Groups.csv"}
			err := im.ImportUserGroups(ctx, recordsOf("GroupID,GroupName\n"+position+",Staff\n"), sum)
			assert.NoError(t, err)
		}

		ref, err := store.LookupReference(ctx, catalog.KindUserGroup, "Staff")
		assert.NoError(t, err)
		assert.Equal(t, "5", ref.Position)
	})

	t.Run("wrong header is fatal for the file", func(t *testing.T) {
		store := memory.NewStore()
		im := New(store, testPrefixes, testLogger)
		sum := &Summary{File: "List_of_Groups.csv"}

		err := im.ImportUserGroups(ctx, recordsOf("ID,Name\n1,Staff\n"), sum)
		assert.True(t, errors.Is(err, apperrors.ErrValidation))
		assert.Equal(t, 0, sum.Imported)
	})
}

func TestImportUsers(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	im := New(store, testPrefixes, testLogger)
	sum := &Summary{File: "List_of_Users.csv"}

	err := im.ImportUsers(ctx, rowsOf("UserName,GroupName,Email\nJane Doe,Staff,jane@example.org\nBob Ray,Students,\n"), sum)
	assert.NoError(t, err)
	assert.Equal(t, 2, sum.Imported)

	u, err := store.GetUser(ctx, "Jane Doe", "Staff")
	assert.NoError(t, err)
	assert.Equal(t, "jane doe.staff", u.Username)
	if assert.NotNil(t, u.Email) {
		assert.Equal(t, "jane@example.org", *u.Email)
	}

	// The group came into existence as a byproduct.
	_, err = store.LookupReference(ctx, catalog.KindUserGroup, "Students")
	assert.NoError(t, err)

	// Empty email stays absent.
	u, err = store.GetUser(ctx, "Bob Ray", "Students")
	assert.NoError(t, err)
	assert.Nil(t, u.Email)
}

func TestImportCurrencies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	im := New(store, testPrefixes, testLogger)
	sum := &Summary{File: "List_of_Currencies.csv"}

	err := im.ImportCurrencies(ctx, rowsOf("Currency\nRupees\nUSD\n"), sum)
	assert.NoError(t, err)

	ref, err := store.LookupReference(ctx, catalog.KindCurrency, "Rupees")
	assert.NoError(t, err)
	assert.Equal(t, "Rupe", ref.Symbol)
}

func TestImportLocations(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	im := New(store, testPrefixes, testLogger)
	sum := &Summary{File: "List_of_Locations.csv"}

	err := im.ImportLocations(ctx, rowsOf("Location,PreventBorrow\nMain Library,0\nReference Room,1\nAnnex,oops\n"), sum)
	assert.NoError(t, err)
	assert.Equal(t, 3, sum.Imported)

	ref, err := store.LookupReference(ctx, catalog.KindCampusLocation, "Reference Room")
	assert.NoError(t, err)
	assert.True(t, ref.PreventBorrowing)

	ref, err = store.LookupReference(ctx, catalog.KindCampusLocation, "Annex")
	assert.NoError(t, err)
	assert.False(t, ref.PreventBorrowing)
}

func writeExport(t *testing.T, dir, name, content string) {
	t.Helper()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	im := New(store, testPrefixes, testLogger)

	dir := t.TempDir()
	writeExport(t, dir, "List_of_Groups.csv", "GroupID,GroupName\n1,Staff\n")
	writeExport(t, dir, "List_of_Users.csv", "UserName,GroupName,Email\nJane Doe,Staff,\n")
	writeExport(t, dir, "List_of_Currencies.csv", "Currency\nINR\n")
	writeExport(t, dir, "List_of_Publishers.csv", "Publisher\nPenguin\n")
	writeExport(t, dir, "List_of_Places_of_Publication.csv", "Place of Publication\nNew Delhi\n")
	writeExport(t, dir, "List_of_Locations.csv", "Location,PreventBorrow\nMain Library,0\n")
	writeExport(t, dir, "Accession_Register.csv",
		"Accession,Call number,Title,Author,Publisher,Place of publication,Date of publication,Date of receipt,Currency,Price,Source,Location\n"+
			"100,813.54,The Long Road,A. Writer,Penguin,New Delhi,1998,15 Mar 2004,INR,120.50,Donation,Main Library\n")
	writeExport(t, dir, "Current_Issues.csv",
		"Accession,Category,Title,UserName,Date Borrowed\n"+
			"100,1,The Long Road,\"Jane Doe, Staff\",01/05/2020 09:00:00\n")

	summaries := im.Run(ctx, dir)
	assert.Len(t, summaries, 8)
	for _, sum := range summaries {
		assert.NoError(t, sum.Err, "file %s", sum.File)
		assert.Empty(t, sum.Warnings, "file %s", sum.File)
	}

	item, err := store.GetItem(ctx, "b:100")
	assert.NoError(t, err)
	assert.Equal(t, "The Long Road", item.Title)
	if assert.NotNil(t, item.BorrowCurrent) {
		assert.Equal(t, "Jane Doe", item.BorrowCurrent.UserName)
		assert.Equal(t, "Staff", item.BorrowCurrent.GroupName)
		assert.Equal(t, time.Date(2020, 1, 5, 9, 0, 0, 0, time.UTC), *item.BorrowCurrent.BorrowDate)
		assert.Equal(t, time.Date(2020, 1, 19, 9, 0, 0, 0, time.UTC), *item.BorrowCurrent.DueDate)
	}
}

func TestRunToleratesPerFileFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	im := New(store, testPrefixes, testLogger)

	// Only two files present, one of them with a broken header: the
	// run must still reach the later files.
	dir := t.TempDir()
	writeExport(t, dir, "List_of_Groups.csv", "Wrong,Header\n1,Staff\n")
	writeExport(t, dir, "List_of_Currencies.csv", "Currency\nINR\n")

	summaries := im.Run(ctx, dir)
	assert.Len(t, summaries, 8)

	byFile := make(map[string]*Summary, len(summaries))
	for _, sum := range summaries {
		byFile[sum.File] = sum
	}

	assert.Error(t, byFile["List_of_Groups.csv"].Err)
	assert.NoError(t, byFile["List_of_Currencies.csv"].Err)
	assert.Equal(t, 1, byFile["List_of_Currencies.csv"].Imported)
	assert.Error(t, byFile["List_of_Users.csv"].Err) // missing file
}

func TestRowFailureSkipsRowOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	im := New(store, testPrefixes, testLogger)
	sum := &Summary{File: "Current_Issues.csv"}

	// First row names a missing item, second row is fine once the item
	// exists.
	assert.NoError(t, store.PutItem(ctx, &catalog.Item{Accession: "b:2", Title: "Present"}))
	_, err := store.UpsertReference(ctx, catalog.KindUserGroup, "Staff", catalog.Attributes{})
	assert.NoError(t, err)
	assert.NoError(t, store.UpsertUser(ctx, &catalog.User{Name: "Jane Doe", Group: "Staff"}))

	err = im.ImportBorrows(ctx, rowsOf(
		"Accession,Category,Title,UserName,Date Borrowed\n"+
			"1,1,Absent,\"Jane Doe, Staff\",01/05/2020 09:00:00\n"+
			"2,1,Present,\"Jane Doe, Staff\",01/05/2020 09:00:00\n"), sum)
	assert.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.Imported)
	assert.Equal(t, 1, sum.Skipped)
	if assert.Len(t, sum.Warnings, 1) {
		assert.Contains(t, sum.Warnings[0], "item record does not exist")
	}

	item, err := store.GetItem(ctx, "b:2")
	assert.NoError(t, err)
	assert.NotNil(t, item.BorrowCurrent)
}
