package feature

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryProvider keeps flags in a map. Safe for concurrent use.
type MemoryProvider struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

// NewMemoryProvider creates a provider seeded with initial flags.
func NewMemoryProvider(initial ...*Flag) (*MemoryProvider, error) {
	p := &MemoryProvider{flags: make(map[string]Flag, len(initial))}
	for _, f := range initial {
		if f == nil {
			continue
		}
		if err := p.SetFlag(context.Background(), *f); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// IsEnabled implements Provider.
func (m *MemoryProvider) IsEnabled(_ context.Context, flagName string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.flags[flagName]
	if !ok {
		return false, ErrFlagNotFound
	}
	return f.Enabled, nil
}

// GetFlag returns a copy of the named flag.
func (m *MemoryProvider) GetFlag(_ context.Context, flagName string) (*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.flags[flagName]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return &f, nil
}

// ListFlags returns copies of all flags sorted by name.
func (m *MemoryProvider) ListFlags(context.Context) ([]*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Flag, 0, len(m.flags))
	for _, f := range m.flags {
		out = append(out, &f)
	}
	slices.SortFunc(out, func(a, b *Flag) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// SetFlag creates or replaces a flag, keeping the old description when the
// new one is empty.
func (m *MemoryProvider) SetFlag(_ context.Context, flag Flag) error {
	if flag.Name == "" {
		return ErrInvalidFlag
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.flags[flag.Name]; ok && flag.Description == "" {
		flag.Description = prev.Description
	}
	if flag.UpdatedAt.IsZero() {
		flag.UpdatedAt = time.Now().UTC()
	}
	m.flags[flag.Name] = flag
	return nil
}

// DeleteFlag removes a flag or returns ErrFlagNotFound.
func (m *MemoryProvider) DeleteFlag(_ context.Context, flagName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.flags[flagName]; !ok {
		return ErrFlagNotFound
	}
	delete(m.flags, flagName)
	return nil
}
