package domain

import (
	"context"
	"time"
)

type Account struct {
	SubjectID     string    `json:"id" dynamodbav:"subject_id" bson:"subject_id"`
	Email         string    `json:"email,omitempty" dynamodbav:"email,omitempty" bson:"email,omitempty"`
	Phone         string    `json:"phone,omitempty" dynamodbav:"phone,omitempty" bson:"phone,omitempty"`
	PasswordHash  string    `json:"-" dynamodbav:"password_hash" bson:"password_hash"`
	EmailVerified bool      `json:"email_verified" dynamodbav:"email_verified" bson:"email_verified"`
	PhoneVerified bool      `json:"phone_verified" dynamodbav:"phone_verified" bson:"phone_verified"`
	CreatedAt     time.Time `json:"created" dynamodbav:"created_at" bson:"created_at"`
	UpdatedAt     time.Time `json:"updated" dynamodbav:"updated_at" bson:"updated_at"`
}

// Contact returns the account's address for channel.
func (a *Account) Contact(channel Channel) string {
	if channel == ChannelEmail {
		return a.Email
	}
	return a.Phone
}

// AccountRepository is the account-storage collaborator for one tenant.
type AccountRepository interface {
	FindByContact(ctx context.Context, channel Channel, destination string) (*Account, error)
	Get(ctx context.Context, subjectID string) (*Account, error)
	Put(ctx context.Context, a *Account) error
	// MarkContactVerified stores destination as the channel's contact and
	// flags it verified.
	MarkContactVerified(ctx context.Context, subjectID string, channel Channel, destination string) error
	SetPasswordHash(ctx context.Context, subjectID, hash string) error
}
