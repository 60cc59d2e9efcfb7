package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"catalog-migrator/internal/domain/catalog"
	"catalog-migrator/internal/infrastructure/monitoring"
	"catalog-migrator/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"
)

type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)

var _ DBPool = (pgxmock.PgxPoolIface)(nil)

var errMsgFormat = "%w: %w"

// CatalogRepository implements catalog.Store on PostgreSQL. Reference
// entities of every kind share one table keyed by (kind, name); items
// carry their current borrow state in nullable columns, keeping the
// at-most-one-active-borrow invariant structural.
type CatalogRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ catalog.Store = (*CatalogRepository)(nil)

func NewCatalogRepository(db DBPool, logger *slog.Logger) *CatalogRepository {
	if db == nil {
		panic("DBPool cannot be nil for CatalogRepository")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewCatalogRepository, using default stderr handler")
	}
	return &CatalogRepository{
		db:     db,
		logger: logger.With("component", "CatalogRepository"),
	}
}

const lookupReferenceSQL = `
        SELECT kind, name, position, symbol, prevent_borrowing, prefix
        FROM catalog_references
        WHERE kind = $1 AND name = $2`

const insertReferenceSQL = `
        INSERT INTO catalog_references (kind, name, position, symbol, prevent_borrowing, prefix, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (kind, name) DO NOTHING`

const upsertReferenceSQL = `
        INSERT INTO catalog_references (kind, name, position, symbol, prevent_borrowing, prefix, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (kind, name) DO UPDATE
        SET position = EXCLUDED.position,
            symbol = EXCLUDED.symbol,
            prevent_borrowing = EXCLUDED.prevent_borrowing,
            prefix = EXCLUDED.prefix,
            updated_at = NOW()`

func (r *CatalogRepository) LookupReference(ctx context.Context, kind catalog.ReferenceKind, name string) (*catalog.Reference, error) {
	var ref catalog.Reference
	err := r.db.QueryRow(ctx, lookupReferenceSQL, string(kind), name).Scan(
		&ref.Kind, &ref.Name, &ref.Position, &ref.Symbol, &ref.PreventBorrowing, &ref.Prefix,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %q", apperrors.ErrNotFound, kind, name)
		}
		r.logger.ErrorContext(ctx, "Failed to look up reference", "kind", kind, "name", name, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &ref, nil
}

func (r *CatalogRepository) ResolveReference(ctx context.Context, kind catalog.ReferenceKind, name string, defaults catalog.Attributes) (*catalog.Reference, error) {
	ref, err := r.LookupReference(ctx, kind, name)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	created := &catalog.Reference{Kind: kind, Name: name}
	defaults.ApplyTo(created)

	// DO NOTHING keeps an existing row's attributes if one appeared
	// since the lookup; the re-read below returns whichever row won.
	if _, err := r.db.Exec(ctx, insertReferenceSQL,
		string(kind), name, created.Position, created.Symbol, created.PreventBorrowing, created.Prefix,
	); err != nil {
		r.logger.ErrorContext(ctx, "Failed to create reference", "kind", kind, "name", name, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return r.LookupReference(ctx, kind, name)
}

func (r *CatalogRepository) UpsertReference(ctx context.Context, kind catalog.ReferenceKind, name string, attrs catalog.Attributes) (*catalog.Reference, error) {
	ref, err := r.LookupReference(ctx, kind, name)
	if errors.Is(err, apperrors.ErrNotFound) {
		ref = &catalog.Reference{Kind: kind, Name: name}
	} else if err != nil {
		return nil, err
	}
	attrs.ApplyTo(ref)

	if _, err := r.db.Exec(ctx, upsertReferenceSQL,
		string(kind), name, ref.Position, ref.Symbol, ref.PreventBorrowing, ref.Prefix,
	); err != nil {
		r.logger.ErrorContext(ctx, "Failed to upsert reference", "kind", kind, "name", name, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return ref, nil
}

const getUserSQL = `
        SELECT name, group_name, email, username
        FROM users
        WHERE name = $1 AND group_name = $2`

const upsertUserSQL = `
        INSERT INTO users (name, group_name, email, username, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        ON CONFLICT (name, group_name) DO UPDATE
        SET email = EXCLUDED.email,
            username = EXCLUDED.username,
            updated_at = NOW()`

func (r *CatalogRepository) GetUser(ctx context.Context, name, group string) (*catalog.User, error) {
	var u catalog.User
	err := r.db.QueryRow(ctx, getUserSQL, name, group).Scan(&u.Name, &u.Group, &u.Email, &u.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %q in group %q", apperrors.ErrNotFound, name, group)
		}
		r.logger.ErrorContext(ctx, "Failed to get user", "name", name, "group", group, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &u, nil
}

func (r *CatalogRepository) UpsertUser(ctx context.Context, u *catalog.User) error {
	if u == nil {
		return fmt.Errorf("%w: user cannot be nil", apperrors.ErrInvalidArgument)
	}
	if _, err := r.db.Exec(ctx, upsertUserSQL, u.Name, u.Group, u.Email, u.Username); err != nil {
		r.logger.ErrorContext(ctx, "Failed to upsert user", "name", u.Name, "group", u.Group, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

const getItemSQL = `
        SELECT accession, call_number, title, author, publisher, publish_place,
               publication_year, receipt_date, currency, price, source, campus_location,
               borrow_user, borrow_group, borrow_date, due_date
        FROM items
        WHERE accession = $1`

const putItemSQL = `
        INSERT INTO items (accession, call_number, title, author, publisher, publish_place,
                           publication_year, receipt_date, currency, price, source, campus_location,
                           borrow_user, borrow_group, borrow_date, due_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
        ON CONFLICT (accession) DO UPDATE
        SET call_number = EXCLUDED.call_number,
            title = EXCLUDED.title,
            author = EXCLUDED.author,
            publisher = EXCLUDED.publisher,
            publish_place = EXCLUDED.publish_place,
            publication_year = EXCLUDED.publication_year,
            receipt_date = EXCLUDED.receipt_date,
            currency = EXCLUDED.currency,
            price = EXCLUDED.price,
            source = EXCLUDED.source,
            campus_location = EXCLUDED.campus_location,
            borrow_user = EXCLUDED.borrow_user,
            borrow_group = EXCLUDED.borrow_group,
            borrow_date = EXCLUDED.borrow_date,
            due_date = EXCLUDED.due_date,
            updated_at = NOW()`

func (r *CatalogRepository) GetItem(ctx context.Context, accession string) (*catalog.Item, error) {
	status := "success"
	startTime := time.Now()

	var item catalog.Item
	var borrowUser, borrowGroup *string
	var borrowDate, dueDate *time.Time

	err := r.db.QueryRow(ctx, getItemSQL, accession).Scan(
		&item.Accession, &item.CallNumber, &item.Title, &item.Author, &item.Publisher, &item.PublishPlace,
		&item.PublicationYear, &item.ReceiptDate, &item.Currency, &item.Price, &item.Source, &item.CampusLocation,
		&borrowUser, &borrowGroup, &borrowDate, &dueDate,
	)

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetItem", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: item %q", apperrors.ErrNotFound, accession)
		}
		r.logger.ErrorContext(ctx, "Failed to get item", "accession", accession, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	if borrowUser != nil {
		record := &catalog.BorrowRecord{UserName: *borrowUser, BorrowDate: borrowDate, DueDate: dueDate}
		if borrowGroup != nil {
			record.GroupName = *borrowGroup
		}
		item.BorrowCurrent = record
	}
	return &item, nil
}

func (r *CatalogRepository) PutItem(ctx context.Context, item *catalog.Item) error {
	if item == nil {
		return fmt.Errorf("%w: item cannot be nil", apperrors.ErrInvalidArgument)
	}

	var borrowUser, borrowGroup *string
	var borrowDate, dueDate *time.Time
	if record := item.BorrowCurrent; record != nil {
		borrowUser = &record.UserName
		borrowGroup = &record.GroupName
		borrowDate = record.BorrowDate
		dueDate = record.DueDate
	}

	status := "success"
	startTime := time.Now()
	_, err := r.db.Exec(ctx, putItemSQL,
		item.Accession, item.CallNumber, item.Title, item.Author, item.Publisher, item.PublishPlace,
		item.PublicationYear, item.ReceiptDate, item.Currency, item.Price, item.Source, item.CampusLocation,
		borrowUser, borrowGroup, borrowDate, dueDate,
	)
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("PutItem", status, time.Since(startTime))

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to put item", "accession", item.Accession, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

const findUserByNameSQL = `
        SELECT name, group_name, email, username
        FROM users
        WHERE name = $1
        ORDER BY group_name
        LIMIT 1`

const grantRoleSQL = `
        INSERT INTO user_role_grants (user_name, group_name, role_name, created_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT DO NOTHING`

func (r *CatalogRepository) GrantRole(ctx context.Context, userName, roleName string) (bool, error) {
	var u catalog.User
	err := r.db.QueryRow(ctx, findUserByNameSQL, userName).Scan(&u.Name, &u.Group, &u.Email, &u.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%w: user %q", apperrors.ErrNotFound, userName)
		}
		r.logger.ErrorContext(ctx, "Failed to find user for role grant", "name", userName, "error", err)
		return false, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	if _, err := r.ResolveReference(ctx, catalog.KindUserRole, roleName, catalog.Attributes{}); err != nil {
		return false, err
	}

	cmdTag, err := r.db.Exec(ctx, grantRoleSQL, u.Name, u.Group, roleName)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to grant role", "name", userName, "role", roleName, "error", err)
		return false, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return cmdTag.RowsAffected() > 0, nil
}
