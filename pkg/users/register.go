package users

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AutoRegisterDirectory creates a bare profile for unknown senders instead of
// reporting them as missing.
type AutoRegisterDirectory struct {
	store Store
	log   *slog.Logger
}

// NewAutoRegisterDirectory wraps store so every looked-up address resolves.
func NewAutoRegisterDirectory(store Store, log *slog.Logger) *AutoRegisterDirectory {
	if log == nil {
		log = slog.Default()
	}

	return &AutoRegisterDirectory{store: store, log: log.With("component", "users.autoregister")}
}

func (d *AutoRegisterDirectory) Lookup(ctx context.Context, address string) (Info, bool, error) {
	info, ok, err := d.store.Lookup(ctx, address)
	if err != nil || ok {
		return info, ok, err
	}

	address = normalizeAddress(address)
	if address == "" {
		return Info{}, false, nil
	}

	info = Info{Address: address, CreatedAt: time.Now().UTC()}
	if err := d.store.Save(ctx, info); err != nil {
		return Info{}, false, fmt.Errorf("register user %q: %w", address, err)
	}
	d.log.Info("Registered new user", "address", address)

	return info, true, nil
}
