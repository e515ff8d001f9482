package domain

import (
	"context"
	"time"
)

// Purpose is why a code was issued.
type Purpose string

const (
	PurposeVerification  Purpose = "verification"
	PurposePasswordReset Purpose = "passwordReset"
	PurposeLogin         Purpose = "login"

	// PurposePasswordResetGrant is internal: the grant handed out after a
	// passwordReset code verifies. Never accepted from callers.
	PurposePasswordResetGrant Purpose = "passwordResetGrant"
)

// Valid reports whether p may be requested by a caller.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeVerification, PurposePasswordReset, PurposeLogin:
		return true
	}
	return false
}

// Channel is the delivery medium.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// Delivery status values stored on a code.
const (
	DeliveryPending = "pending"
	DeliveryFailed  = "failed"
)

// DeliverySent is the status stored once provider accepted the message.
func DeliverySent(provider string) string { return "sent:" + provider }

// OneTimeCode is a single issued code. At most one record exists per
// (subject_id, purpose); issuing a new one replaces it.
// ExpiresAt doubles as the DynamoDB TTL attribute (Unix seconds).
type OneTimeCode struct {
	CodeID         string    `json:"code_id" dynamodbav:"code_id" bson:"code_id"`
	SubjectID      string    `json:"subject_id" dynamodbav:"subject_id" bson:"subject_id"`
	Purpose        Purpose   `json:"purpose" dynamodbav:"purpose" bson:"purpose"`
	Channel        Channel   `json:"channel" dynamodbav:"channel" bson:"channel"`
	Destination    string    `json:"-" dynamodbav:"destination,omitempty" bson:"destination"`
	CodeHash       string    `json:"-" dynamodbav:"code_hash" bson:"code_hash"`
	CreatedAt      time.Time `json:"created_at" dynamodbav:"created_at" bson:"created_at"`
	ExpiresAt      time.Time `json:"expires_at" dynamodbav:"expires_at,unixtime" bson:"expires_at"`
	Attempts       int       `json:"attempts" dynamodbav:"attempts" bson:"attempts"`
	IsUsed         bool      `json:"is_used" dynamodbav:"is_used" bson:"is_used"`
	DeliveryStatus string    `json:"delivery_status" dynamodbav:"delivery_status" bson:"delivery_status"`

	// Code is the plaintext value. Only set on the value returned by issue.
	Code string `json:"-" dynamodbav:"-" bson:"-"`
}

// Expired reports whether the code is past its expiry at now.
func (c *OneTimeCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CodeRepository persists codes for one tenant.
type CodeRepository interface {
	// Put stores c, replacing any record for (c.SubjectID, c.Purpose).
	Put(ctx context.Context, c *OneTimeCode) error
	Get(ctx context.Context, subjectID string, purpose Purpose) (*OneTimeCode, error)
	// RecordAttempt increments attempts on the record whose code_id matches,
	// failing with ErrAttemptsExhausted once attempts has reached max.
	RecordAttempt(ctx context.Context, subjectID string, purpose Purpose, codeID string, max int) (int, error)
	MarkUsed(ctx context.Context, subjectID string, purpose Purpose, codeID string) error
	SetDeliveryStatus(ctx context.Context, subjectID string, purpose Purpose, codeID, status string) error
	FindByDestination(ctx context.Context, destination string) ([]OneTimeCode, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
