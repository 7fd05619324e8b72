// Package users resolves sender addresses to user profiles.
package users

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Info is the resolved profile for one sender address.
type Info struct {
	Address   string    `json:"address"`
	Name      string    `json:"name,omitempty"`
	Wallet    string    `json:"wallet,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the name when set, else the address.
func (i Info) DisplayName() string {
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}

	return i.Address
}

// Directory looks up user profiles by sender address.
//
// A missing user is reported as ok=false with a nil error; errors are reserved
// for lookup failures.
type Directory interface {
	Lookup(ctx context.Context, address string) (Info, bool, error)
}

// Store is a Directory that can also persist profiles.
type Store interface {
	Directory
	Save(ctx context.Context, info Info) error
	List(ctx context.Context) ([]Info, error)
}

// ErrAddressRequired is returned when saving a profile without an address.
var ErrAddressRequired = errors.New("user address is required")

func normalizeAddress(address string) string {
	return strings.TrimSpace(address)
}
