package dynamo

// DynamoDB attribute names used in key and update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldSubjectID      = "subject_id"
	fieldPurpose        = "purpose"
	fieldCodeID         = "code_id"
	fieldAttempts       = "attempts"
	fieldIsUsed         = "is_used"
	fieldDeliveryStatus = "delivery_status"
	fieldDestination    = "destination"
	fieldExpiresAt      = "expires_at"
	fieldEmail          = "email"
	fieldPhone          = "phone"
	fieldEmailVerified  = "email_verified"
	fieldPhoneVerified  = "phone_verified"
	fieldPasswordHash   = "password_hash"
	fieldUpdatedAt      = "updated_at"
	fieldSessionID      = "session_id"

	indexDestination = "destination-index"
	indexEmail       = "email-index"
	indexPhone       = "phone-index"
)
