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

type AccountRepo struct {
	coll    *mongo.Collection
	observe func(error) error
}

func (r *AccountRepo) Put(ctx context.Context, a *domain.Account) error {
	_, err := r.coll.ReplaceOne(ctx, bson.M{"subject_id": a.SubjectID}, a, options.Replace().SetUpsert(true))
	if err != nil {
		return r.observe(fmt.Errorf("put account: %w", err))
	}
	return nil
}

func (r *AccountRepo) Get(ctx context.Context, subjectID string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"subject_id": subjectID})
}

func (r *AccountRepo) FindByContact(ctx context.Context, channel domain.Channel, destination string) (*domain.Account, error) {
	field := "phone"
	if channel == domain.ChannelEmail {
		field = "email"
	}
	return r.findOne(ctx, bson.M{field: destination})
}

func (r *AccountRepo) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	var a domain.Account
	err := r.coll.FindOne(ctx, filter).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, r.observe(fmt.Errorf("find account: %w", err))
	}
	return &a, nil
}

func (r *AccountRepo) MarkContactVerified(ctx context.Context, subjectID string, channel domain.Channel, destination string) error {
	if channel == domain.ChannelEmail {
		return r.update(ctx, subjectID, bson.M{"email": destination, "email_verified": true})
	}
	return r.update(ctx, subjectID, bson.M{"phone": destination, "phone_verified": true})
}

func (r *AccountRepo) SetPasswordHash(ctx context.Context, subjectID, hash string) error {
	return r.update(ctx, subjectID, bson.M{"password_hash": hash})
}

func (r *AccountRepo) update(ctx context.Context, subjectID string, set bson.M) error {
	set["updated_at"] = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"subject_id": subjectID}, bson.M{"$set": set})
	if err != nil {
		return r.observe(fmt.Errorf("update account: %w", err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return nil
}
