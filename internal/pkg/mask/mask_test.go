package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDestination(t *testing.T) {
	cases := map[string]string{
		"john@example.com": "j***@example.com",
		"+15551231234":     "***1234",
		"@example.com":     "***",
		"123":              "***",
		"":                 "***",
	}
	for in, want := range cases {
		assert.Equal(t, want, Destination(in), in)
	}
}
