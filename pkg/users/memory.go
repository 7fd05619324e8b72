package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"riddlebot/pkg/config"
)

// MemoryDirectory keeps profiles in process memory. It backs the "static"
// users backend, seeded from config.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]Info
}

// NewMemoryDirectory builds a directory seeded with configured entries.
func NewMemoryDirectory(entries []config.UserEntry) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]Info, len(entries))}
	now := time.Now().UTC()
	for _, entry := range entries {
		address := normalizeAddress(entry.Address)
		if address == "" {
			continue
		}
		d.users[address] = Info{Address: address, Name: entry.Name, Wallet: entry.Wallet, CreatedAt: now}
	}

	return d
}

func (d *MemoryDirectory) Lookup(ctx context.Context, address string) (Info, bool, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, false, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	info, ok := d.users[normalizeAddress(address)]
	return info, ok, nil
}

func (d *MemoryDirectory) Save(ctx context.Context, info Info) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info.Address = normalizeAddress(info.Address)
	if info.Address == "" {
		return ErrAddressRequired
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.users[info.Address]; ok {
		info.CreatedAt = existing.CreatedAt
	}
	d.users[info.Address] = info
	return nil
}

func (d *MemoryDirectory) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Info, 0, len(d.users))
	for _, info := range d.users {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
