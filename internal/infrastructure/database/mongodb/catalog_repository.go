package mongodb

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

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errMsgFormat = "%w: %w"

// Each reference kind lives in its own collection, keyed by name. This
// mirrors the document layout the catalog originally used, so an
// existing database can be pointed at directly.
var kindCollections = map[catalog.ReferenceKind]string{
	catalog.KindUserGroup:      "user_groups",
	catalog.KindCurrency:       "currencies",
	catalog.KindPublisher:      "publishers",
	catalog.KindPublishPlace:   "publish_places",
	catalog.KindCampusLocation: "campus_locations",
	catalog.KindCreator:        "creators",
	catalog.KindItemType:       "item_types",
	catalog.KindUserRole:       "user_roles",
}

const (
	usersCollection     = "users"
	itemsCollection     = "items"
	roleLinksCollection = "user_role_links"
)

type referenceDoc struct {
	Name             string `bson:"name"`
	Position         string `bson:"position,omitempty"`
	Symbol           string `bson:"symbol,omitempty"`
	PreventBorrowing bool   `bson:"prevent_borrowing,omitempty"`
	Prefix           string `bson:"prefix,omitempty"`
}

type userDoc struct {
	Name     string  `bson:"name"`
	Group    string  `bson:"group_name"`
	Email    *string `bson:"email,omitempty"`
	Username string  `bson:"username"`
}

type borrowDoc struct {
	UserName   string     `bson:"user_name"`
	GroupName  string     `bson:"group_name"`
	BorrowDate *time.Time `bson:"borrow_date,omitempty"`
	DueDate    *time.Time `bson:"due_date,omitempty"`
}

type itemDoc struct {
	Accession       string     `bson:"accession"`
	CallNumber      string     `bson:"call_number,omitempty"`
	Title           string     `bson:"title,omitempty"`
	Author          string     `bson:"author,omitempty"`
	Publisher       string     `bson:"publisher,omitempty"`
	PublishPlace    string     `bson:"publish_place,omitempty"`
	PublicationYear *int       `bson:"publication_year,omitempty"`
	ReceiptDate     *time.Time `bson:"receipt_date,omitempty"`
	Currency        string     `bson:"currency,omitempty"`
	Price           *string    `bson:"price,omitempty"`
	Source          string     `bson:"source,omitempty"`
	CampusLocation  string     `bson:"campus_location,omitempty"`
	BorrowCurrent   *borrowDoc `bson:"borrow_current,omitempty"`
}

// CatalogRepository implements catalog.Store on MongoDB.
type CatalogRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

var _ catalog.Store = (*CatalogRepository)(nil)

func NewCatalogRepository(db *mongo.Database, logger *slog.Logger) *CatalogRepository {
	if db == nil {
		panic("mongo database cannot be nil for CatalogRepository")
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

func (r *CatalogRepository) kindCollection(kind catalog.ReferenceKind) (*mongo.Collection, error) {
	name, ok := kindCollections[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown reference kind %q", apperrors.ErrInvalidArgument, kind)
	}
	return r.db.Collection(name), nil
}

func (r *CatalogRepository) LookupReference(ctx context.Context, kind catalog.ReferenceKind, name string) (*catalog.Reference, error) {
	coll, err := r.kindCollection(kind)
	if err != nil {
		return nil, err
	}

	var doc referenceDoc
	err = coll.FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s %q", apperrors.ErrNotFound, kind, name)
		}
		r.logger.ErrorContext(ctx, "Failed to look up reference", "kind", kind, "name", name, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	return &catalog.Reference{
		Kind:             kind,
		Name:             doc.Name,
		Position:         doc.Position,
		Symbol:           doc.Symbol,
		PreventBorrowing: doc.PreventBorrowing,
		Prefix:           doc.Prefix,
	}, nil
}

func (r *CatalogRepository) ResolveReference(ctx context.Context, kind catalog.ReferenceKind, name string, defaults catalog.Attributes) (*catalog.Reference, error) {
	coll, err := r.kindCollection(kind)
	if err != nil {
		return nil, err
	}

	created := &catalog.Reference{Kind: kind, Name: name}
	defaults.ApplyTo(created)

	// $setOnInsert leaves an existing document untouched; the re-read
	// below returns whichever document won.
	_, err = coll.UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{"$setOnInsert": referenceDoc{
			Name:             name,
			Position:         created.Position,
			Symbol:           created.Symbol,
			PreventBorrowing: created.PreventBorrowing,
			Prefix:           created.Prefix,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
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

	coll, err := r.kindCollection(kind)
	if err != nil {
		return nil, err
	}
	_, err = coll.ReplaceOne(ctx,
		bson.M{"name": name},
		referenceDoc{
			Name:             name,
			Position:         ref.Position,
			Symbol:           ref.Symbol,
			PreventBorrowing: ref.PreventBorrowing,
			Prefix:           ref.Prefix,
		},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to upsert reference", "kind", kind, "name", name, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return ref, nil
}

func (r *CatalogRepository) GetUser(ctx context.Context, name, group string) (*catalog.User, error) {
	var doc userDoc
	err := r.db.Collection(usersCollection).FindOne(ctx, bson.M{"name": name, "group_name": group}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: user %q in group %q", apperrors.ErrNotFound, name, group)
		}
		r.logger.ErrorContext(ctx, "Failed to get user", "name", name, "group", group, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &catalog.User{Name: doc.Name, Group: doc.Group, Email: doc.Email, Username: doc.Username}, nil
}

func (r *CatalogRepository) UpsertUser(ctx context.Context, u *catalog.User) error {
	if u == nil {
		return fmt.Errorf("%w: user cannot be nil", apperrors.ErrInvalidArgument)
	}
	_, err := r.db.Collection(usersCollection).ReplaceOne(ctx,
		bson.M{"name": u.Name, "group_name": u.Group},
		userDoc{Name: u.Name, Group: u.Group, Email: u.Email, Username: u.Username},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to upsert user", "name", u.Name, "group", u.Group, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *CatalogRepository) GetItem(ctx context.Context, accession string) (*catalog.Item, error) {
	status := "success"
	startTime := time.Now()

	var doc itemDoc
	err := r.db.Collection(itemsCollection).FindOne(ctx, bson.M{"accession": accession}).Decode(&doc)

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetItem", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: item %q", apperrors.ErrNotFound, accession)
		}
		r.logger.ErrorContext(ctx, "Failed to get item", "accession", accession, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	item := &catalog.Item{
		Accession:       doc.Accession,
		CallNumber:      doc.CallNumber,
		Title:           doc.Title,
		Author:          doc.Author,
		Publisher:       doc.Publisher,
		PublishPlace:    doc.PublishPlace,
		PublicationYear: doc.PublicationYear,
		ReceiptDate:     doc.ReceiptDate,
		Currency:        doc.Currency,
		Source:          doc.Source,
		CampusLocation:  doc.CampusLocation,
	}
	if doc.Price != nil {
		price, err := decimal.NewFromString(*doc.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: stored price %q on item %q: %w", apperrors.ErrInternalServer, *doc.Price, accession, err)
		}
		item.Price = decimal.NewNullDecimal(price)
	}
	if doc.BorrowCurrent != nil {
		item.BorrowCurrent = &catalog.BorrowRecord{
			UserName:   doc.BorrowCurrent.UserName,
			GroupName:  doc.BorrowCurrent.GroupName,
			BorrowDate: doc.BorrowCurrent.BorrowDate,
			DueDate:    doc.BorrowCurrent.DueDate,
		}
	}
	return item, nil
}

func (r *CatalogRepository) PutItem(ctx context.Context, item *catalog.Item) error {
	if item == nil {
		return fmt.Errorf("%w: item cannot be nil", apperrors.ErrInvalidArgument)
	}

	doc := itemDoc{
		Accession:       item.Accession,
		CallNumber:      item.CallNumber,
		Title:           item.Title,
		Author:          item.Author,
		Publisher:       item.Publisher,
		PublishPlace:    item.PublishPlace,
		PublicationYear: item.PublicationYear,
		ReceiptDate:     item.ReceiptDate,
		Currency:        item.Currency,
		Source:          item.Source,
		CampusLocation:  item.CampusLocation,
	}
	if item.Price.Valid {
		// Decimals are stored as strings so no precision is lost to
		// float round-tripping.
		price := item.Price.Decimal.String()
		doc.Price = &price
	}
	if record := item.BorrowCurrent; record != nil {
		doc.BorrowCurrent = &borrowDoc{
			UserName:   record.UserName,
			GroupName:  record.GroupName,
			BorrowDate: record.BorrowDate,
			DueDate:    record.DueDate,
		}
	}

	status := "success"
	startTime := time.Now()
	_, err := r.db.Collection(itemsCollection).ReplaceOne(ctx,
		bson.M{"accession": item.Accession}, doc, options.Replace().SetUpsert(true))
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

func (r *CatalogRepository) GrantRole(ctx context.Context, userName, roleName string) (bool, error) {
	var doc userDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "group_name", Value: 1}})
	err := r.db.Collection(usersCollection).FindOne(ctx, bson.M{"name": userName}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, fmt.Errorf("%w: user %q", apperrors.ErrNotFound, userName)
		}
		r.logger.ErrorContext(ctx, "Failed to find user for role grant", "name", userName, "error", err)
		return false, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	if _, err := r.ResolveReference(ctx, catalog.KindUserRole, roleName, catalog.Attributes{}); err != nil {
		return false, err
	}

	filter := bson.M{"user_name": doc.Name, "group_name": doc.Group, "role_name": roleName}
	result, err := r.db.Collection(roleLinksCollection).UpdateOne(ctx,
		filter, bson.M{"$setOnInsert": filter}, options.Update().SetUpsert(true))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to grant role", "name", userName, "role", roleName, "error", err)
		return false, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return result.UpsertedCount > 0, nil
}
