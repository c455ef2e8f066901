package models

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/oklog/ulid/v2"
)

// NewID returns a prefixed ULID, e.g. "evt_01J...". ulid.Make is safe for
// concurrent use, so ids stay unique under concurrent publish.
func NewID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, ulid.Make().String())
}

func NewAPIKey() string {
	return fmt.Sprintf("sk_%s", randomString(32))
}

func NewSecret() string {
	return fmt.Sprintf("whsec_%s", randomString(40))
}

func randomString(n int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		idx, _ := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
