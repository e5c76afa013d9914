package app

import (
	"strings"

	"github.com/google/uuid"
)

const (
	accountNumberPrefix     = "ACC"
	accountNumberRandomPart = 10
	maxAccountNumberTries   = 5
)

// NumberGenerator produces candidate external account numbers. Uniqueness is checked
// by the service against the store.
type NumberGenerator interface {
	Next() string
}

// UUIDNumberGenerator yields "ACC" followed by ten uppercase hex characters taken from
// a random UUID.
type UUIDNumberGenerator struct{}

func (UUIDNumberGenerator) Next() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return accountNumberPrefix + strings.ToUpper(raw[:accountNumberRandomPart])
}
