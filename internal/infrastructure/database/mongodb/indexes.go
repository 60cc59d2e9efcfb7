package mongodb

import (
	"context"
	"fmt"

	"catalog-migrator/internal/domain/catalog"
	"catalog-migrator/internal/pkg/apperrors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InitSchema creates the unique indexes the upsert paths rely on.
// Index creation is idempotent; running it against a populated
// database is safe.
func (r *CatalogRepository) InitSchema(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Creating indexes...")

	unique := options.Index().SetUnique(true)
	indexes := map[string]mongo.IndexModel{
		usersCollection: {
			Keys:    bson.D{{Key: "name", Value: 1}, {Key: "group_name", Value: 1}},
			Options: unique,
		},
		itemsCollection: {
			Keys:    bson.D{{Key: "accession", Value: 1}},
			Options: unique,
		},
		roleLinksCollection: {
			Keys:    bson.D{{Key: "user_name", Value: 1}, {Key: "group_name", Value: 1}, {Key: "role_name", Value: 1}},
			Options: unique,
		},
	}
	for _, kind := range catalog.Kinds {
		indexes[kindCollections[kind]] = mongo.IndexModel{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: unique,
		}
	}

	for collection, model := range indexes {
		if _, err := r.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
			r.logger.ErrorContext(ctx, "Failed to create index", "collection", collection, "error", err)
			return fmt.Errorf("%w: creating indexes: %w", apperrors.ErrDatabase, err)
		}
	}

	r.logger.InfoContext(ctx, "Indexes ready", "collections", len(indexes))
	return nil
}
