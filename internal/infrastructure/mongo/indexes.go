package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ensureIndexes creates the indexes every tenant database needs.
// CreateMany is idempotent for identical specs.
func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		collectionCodes: {
			{
				Keys:    bson.D{{Key: "subject_id", Value: 1}, {Key: "purpose", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("subject_purpose"),
			},
			{
				Keys:    bson.D{{Key: "destination", Value: 1}},
				Options: options.Index().SetName("destination"),
			},
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
			},
		},
		collectionAccounts: {
			{
				Keys:    bson.D{{Key: "subject_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("subject_id"),
			},
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetSparse(true).SetName("email"),
			},
			{
				Keys:    bson.D{{Key: "phone", Value: 1}},
				Options: options.Index().SetSparse(true).SetName("phone"),
			},
		},
		collectionSessions: {
			{
				Keys:    bson.D{{Key: "session_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("session_id"),
			},
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
			},
		},
	}
	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
