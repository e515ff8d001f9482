package validate

import (
	"testing"

	"github.com/ride-identity/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestDestination(t *testing.T) {
	assert.NoError(t, Destination(domain.ChannelSMS, "+15551231234"))
	assert.NoError(t, Destination(domain.ChannelEmail, "jane@example.com"))

	assert.ErrorIs(t, Destination(domain.ChannelSMS, "jane@example.com"), domain.ErrInvalidDestination)
	assert.ErrorIs(t, Destination(domain.ChannelSMS, "5551231234"), domain.ErrInvalidDestination)
	assert.ErrorIs(t, Destination(domain.ChannelEmail, "+15551231234"), domain.ErrInvalidDestination)
	assert.ErrorIs(t, Destination(domain.ChannelEmail, ""), domain.ErrInvalidDestination)
	assert.ErrorIs(t, Destination("fax", "123"), domain.ErrBadRequest)
}

type otpRequest struct {
	Purpose string `validate:"required,purpose"`
	Channel string `validate:"required,channel"`
}

func TestStruct_CustomTags(t *testing.T) {
	assert.NoError(t, Struct(&otpRequest{Purpose: "login", Channel: "sms"}))

	err := Struct(&otpRequest{Purpose: "passwordResetGrant", Channel: "pigeon"})
	assert.ErrorContains(t, err, "field 'Purpose' failed 'purpose'")
	assert.ErrorContains(t, err, "field 'Channel' failed 'channel'")
}

func TestChannelOf(t *testing.T) {
	assert.Equal(t, domain.ChannelEmail, ChannelOf("a@b.co"))
	assert.Equal(t, domain.ChannelSMS, ChannelOf("+15551231234"))
}
