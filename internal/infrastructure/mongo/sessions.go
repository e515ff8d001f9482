package mongo

import (
	"context"
	"fmt"

	"github.com/ride-identity/internal/domain"
	"go.mongodb.org/mongo-driver/mongo"
)

type SessionRepo struct {
	coll    *mongo.Collection
	observe func(error) error
}

func (r *SessionRepo) Put(ctx context.Context, s *domain.Session) error {
	if _, err := r.coll.InsertOne(ctx, s); err != nil {
		return r.observe(fmt.Errorf("put session: %w", err))
	}
	return nil
}
