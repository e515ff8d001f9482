package domain

import (
	"context"
	"time"
)

// Session is the server-side record behind a refresh token issued at login.
type Session struct {
	SessionID        string    `json:"id" dynamodbav:"session_id" bson:"session_id"`
	SubjectID        string    `json:"subject_id" dynamodbav:"subject_id" bson:"subject_id"`
	RefreshTokenHash string    `json:"-" dynamodbav:"refresh_token_hash" bson:"refresh_token_hash"`
	CreatedAt        time.Time `json:"created" dynamodbav:"created_at" bson:"created_at"`
	ExpiresAt        time.Time `json:"expires_at" dynamodbav:"expires_at,unixtime" bson:"expires_at"`
}

type SessionRepository interface {
	Put(ctx context.Context, s *Session) error
}
