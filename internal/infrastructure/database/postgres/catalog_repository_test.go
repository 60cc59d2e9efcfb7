package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"catalog-migrator/internal/domain/catalog"
	"catalog-migrator/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *CatalogRepository) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	assert.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool, NewCatalogRepository(mockPool, testLogger)
}

func referenceRows(ref *catalog.Reference) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"kind", "name", "position", "symbol", "prevent_borrowing", "prefix"}).
		AddRow(ref.Kind, ref.Name, ref.Position, ref.Symbol, ref.PreventBorrowing, ref.Prefix)
}

func TestLookupReference(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)
		expected := &catalog.Reference{Kind: catalog.KindCurrency, Name: "INR", Symbol: "INR"}
		mockPool.ExpectQuery("SELECT kind, name, position, symbol, prevent_borrowing, prefix").
			WithArgs("currency", "INR").
			WillReturnRows(referenceRows(expected))

		ref, err := repo.LookupReference(ctx, catalog.KindCurrency, "INR")
		assert.NoError(t, err)
		assert.Equal(t, expected, ref)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)
		mockPool.ExpectQuery("SELECT kind, name, position, symbol, prevent_borrowing, prefix").
			WithArgs("currency", "XYZ").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.LookupReference(ctx, catalog.KindCurrency, "XYZ")
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestResolveReferenceCreatesWhenAbsent(t *testing.T) {
	ctx := context.Background()
	mockPool, repo := newMockRepo(t)

	mockPool.ExpectQuery("SELECT kind, name, position, symbol, prevent_borrowing, prefix").
		WithArgs("item_type", "book").
		WillReturnError(pgx.ErrNoRows)
	mockPool.ExpectExec("INSERT INTO catalog_references").
		WithArgs("item_type", "book", "", "", false, "b").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	created := &catalog.Reference{Kind: catalog.KindItemType, Name: "book", Prefix: "b"}
	mockPool.ExpectQuery("SELECT kind, name, position, symbol, prevent_borrowing, prefix").
		WithArgs("item_type", "book").
		WillReturnRows(referenceRows(created))

	prefix := "b"
	ref, err := repo.ResolveReference(ctx, catalog.KindItemType, "book", catalog.Attributes{Prefix: &prefix})
	assert.NoError(t, err)
	assert.Equal(t, "b", ref.Prefix)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestResolveReferenceLeavesExistingAlone(t *testing.T) {
	ctx := context.Background()
	mockPool, repo := newMockRepo(t)

	existing := &catalog.Reference{Kind: catalog.KindItemType, Name: "book", Prefix: "b"}
	mockPool.ExpectQuery("SELECT kind, name, position, symbol, prevent_borrowing, prefix").
		WithArgs("item_type", "book").
		WillReturnRows(referenceRows(existing))

	prefix := "zzz"
	ref, err := repo.ResolveReference(ctx, catalog.KindItemType, "book", catalog.Attributes{Prefix: &prefix})
	assert.NoError(t, err)
	assert.Equal(t, "b", ref.Prefix)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestUpsertReferenceOverwrites(t *testing.T) {
	ctx := context.Background()
	mockPool, repo := newMockRepo(t)

	existing := &catalog.Reference{Kind: catalog.KindUserGroup, Name: "Staff", Position: "1"}
	mockPool.ExpectQuery("SELECT kind, name, position, symbol, prevent_borrowing, prefix").
		WithArgs("user_group", "Staff").
		WillReturnRows(referenceRows(existing))
	mockPool.ExpectExec("INSERT INTO catalog_references").
		WithArgs("user_group", "Staff", "7", "", false, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	position := "7"
	ref, err := repo.UpsertReference(ctx, catalog.KindUserGroup, "Staff", catalog.Attributes{Position: &position})
	assert.NoError(t, err)
	assert.Equal(t, "7", ref.Position)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetItem(t *testing.T) {
	ctx := context.Background()

	itemColumns := []string{
		"accession", "call_number", "title", "author", "publisher", "publish_place",
		"publication_year", "receipt_date", "currency", "price", "source", "campus_location",
		"borrow_user", "borrow_group", "borrow_date", "due_date",
	}

	t.Run("not found", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)
		mockPool.ExpectQuery("SELECT accession, call_number").
			WithArgs("b:404").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetItem(ctx, "b:404")
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("reconstructs borrow state from columns", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)
		borrowUser := "Jane Doe"
		borrowGroup := "Staff"
		borrowDate := time.Date(2020, 1, 5, 9, 0, 0, 0, time.UTC)
		dueDate := borrowDate.AddDate(0, 0, 14)

		mockPool.ExpectQuery("SELECT accession, call_number").
			WithArgs("b:100").
			WillReturnRows(pgxmock.NewRows(itemColumns).AddRow(
				"b:100", "813.54 F", "The Long Road", "A. Writer", "Penguin", "New Delhi",
				(*int)(nil), (*time.Time)(nil), "INR", decimal.NullDecimal{}, "Donation", "Main Library",
				&borrowUser, &borrowGroup, &borrowDate, &dueDate,
			))

		item, err := repo.GetItem(ctx, "b:100")
		assert.NoError(t, err)
		if assert.NotNil(t, item.BorrowCurrent) {
			assert.Equal(t, "Jane Doe", item.BorrowCurrent.UserName)
			assert.Equal(t, "Staff", item.BorrowCurrent.GroupName)
			assert.Equal(t, borrowDate, *item.BorrowCurrent.BorrowDate)
			assert.Equal(t, dueDate, *item.BorrowCurrent.DueDate)
		}
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPutItem(t *testing.T) {
	ctx := context.Background()
	mockPool, repo := newMockRepo(t)

	mockPool.ExpectExec("INSERT INTO items").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.PutItem(ctx, &catalog.Item{Accession: "b:100", Title: "The Long Road"})
	assert.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGrantRole(t *testing.T) {
	ctx := context.Background()

	t.Run("user missing", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)
		mockPool.ExpectQuery("SELECT name, group_name, email, username").
			WithArgs("Nobody").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GrantRole(ctx, "Nobody", "admin")
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("grants once", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)
		mockPool.ExpectQuery("SELECT name, group_name, email, username").
			WithArgs("Amogh").
			WillReturnRows(pgxmock.NewRows([]string{"name", "group_name", "email", "username"}).
				AddRow("Amogh", "Staff", (*string)(nil), "amogh.staff"))
		mockPool.ExpectQuery("SELECT kind, name, position, symbol, prevent_borrowing, prefix").
			WithArgs("user_role", "admin").
			WillReturnRows(referenceRows(&catalog.Reference{Kind: catalog.KindUserRole, Name: "admin"}))
		mockPool.ExpectExec("INSERT INTO user_role_grants").
			WithArgs("Amogh", "Staff", "admin").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		created, err := repo.GrantRole(ctx, "Amogh", "admin")
		assert.NoError(t, err)
		assert.True(t, created)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
