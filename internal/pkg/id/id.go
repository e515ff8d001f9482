package id

import (
	"crypto/rand"
	"strings"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs are lexicographically sortable
// by creation time, so code ids also order by issue time.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

const placeholderPrefix = "tmp_"

// Placeholder returns a subject id for flows that run before an account exists.
func Placeholder() string {
	return placeholderPrefix + New()
}

func IsPlaceholder(subjectID string) bool {
	return strings.HasPrefix(subjectID, placeholderPrefix)
}
