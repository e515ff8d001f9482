package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ride-identity/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CodeRepo struct {
	coll    *mongo.Collection
	observe func(error) error
}

func codeFilter(subjectID string, purpose domain.Purpose) bson.M {
	return bson.M{"subject_id": subjectID, "purpose": purpose}
}

func (r *CodeRepo) Put(ctx context.Context, c *domain.OneTimeCode) error {
	_, err := r.coll.ReplaceOne(ctx, codeFilter(c.SubjectID, c.Purpose), c, options.Replace().SetUpsert(true))
	if err != nil {
		return r.observe(fmt.Errorf("put code: %w", err))
	}
	return nil
}

func (r *CodeRepo) Get(ctx context.Context, subjectID string, purpose domain.Purpose) (*domain.OneTimeCode, error) {
	var c domain.OneTimeCode
	err := r.coll.FindOne(ctx, codeFilter(subjectID, purpose)).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, r.observe(fmt.Errorf("get code: %w", err))
	}
	return &c, nil
}

// RecordAttempt increments attempts only while it is below max, so two
// concurrent verifications can never push a code past its cap.
func (r *CodeRepo) RecordAttempt(ctx context.Context, subjectID string, purpose domain.Purpose, codeID string, max int) (int, error) {
	filter := codeFilter(subjectID, purpose)
	filter["code_id"] = codeID
	filter["attempts"] = bson.M{"$lt": max}

	var c domain.OneTimeCode
	err := r.coll.FindOneAndUpdate(ctx, filter,
		bson.M{"$inc": bson.M{"attempts": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if err == nil {
		return c.Attempts, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, r.observe(fmt.Errorf("record attempt: %w", err))
	}

	current, gerr := r.Get(ctx, subjectID, purpose)
	if gerr != nil || current.CodeID != codeID {
		return 0, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	return current.Attempts, domain.ErrAttemptsExhausted
}

func (r *CodeRepo) MarkUsed(ctx context.Context, subjectID string, purpose domain.Purpose, codeID string) error {
	return r.update(ctx, subjectID, purpose, codeID, bson.M{"is_used": true})
}

func (r *CodeRepo) SetDeliveryStatus(ctx context.Context, subjectID string, purpose domain.Purpose, codeID, status string) error {
	return r.update(ctx, subjectID, purpose, codeID, bson.M{"delivery_status": status})
}

func (r *CodeRepo) update(ctx context.Context, subjectID string, purpose domain.Purpose, codeID string, set bson.M) error {
	filter := codeFilter(subjectID, purpose)
	filter["code_id"] = codeID
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return r.observe(fmt.Errorf("update code: %w", err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *CodeRepo) FindByDestination(ctx context.Context, destination string) ([]domain.OneTimeCode, error) {
	cur, err := r.coll.Find(ctx, bson.M{"destination": destination})
	if err != nil {
		return nil, r.observe(fmt.Errorf("find codes by destination: %w", err))
	}
	var out []domain.OneTimeCode
	if err := cur.All(ctx, &out); err != nil {
		return nil, r.observe(fmt.Errorf("decode codes: %w", err))
	}
	return out, nil
}

// DeleteExpired removes what the TTL monitor has not yet reaped.
func (r *CodeRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, r.observe(fmt.Errorf("delete expired codes: %w", err))
	}
	return int(res.DeletedCount), nil
}
