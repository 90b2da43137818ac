package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
)

// Length is the number of characters in a session identity.
const Length = 6

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var ErrInvalidID = errors.New("identity: malformed session id")

// ID is the short shareable handle that names one endpoint at the
// rendezvous broker for the lifetime of a process. Uniqueness is not
// guaranteed here; the broker rejects duplicates at registration time.
type ID string

// New generates a random uppercase alphanumeric identity.
func New() (ID, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("identity: generate: %w", err)
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return ID(buf), nil
}

// Parse normalizes and validates a user supplied identity.
func Parse(s string) (ID, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != Length {
		return "", ErrInvalidID
	}
	for _, r := range s {
		if !strings.ContainsRune(alphabet, r) {
			return "", ErrInvalidID
		}
	}
	return ID(s), nil
}

func (id ID) String() string {
	return string(id)
}
