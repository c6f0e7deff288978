package cookiejar

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Store is the Cookie Store's operation surface. get(session_id, url, seed)
// returns the effective cookie mapping for url; the rest are straightforward
// upserts/deletes. All methods must tolerate concurrent calls from multiple
// fetcher goroutines.
type Store interface {
	Get(ctx context.Context, sessionID string, u *url.URL, seed map[string]string) (map[string]string, error)
	Save(ctx context.Context, rows []*Cookie) error
	Delete(ctx context.Context, keys []CookieKey) error
	Clear(ctx context.Context, sessionID string) error
	Unset(ctx context.Context, sessionID string, keys []UnsetKey) error
	Close() error
}

// MemStore is an in-process Store, used for :memory: sessions and tests. It
// implements the same candidate-domain/path-prefix selection algorithm as
// SQLStore without a database round trip.
type MemStore struct {
	mu   sync.RWMutex
	rows map[CookieKey]*Cookie
}

// NewMemStore returns an empty in-memory cookie store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[CookieKey]*Cookie)}
}

func keyOf(c *Cookie) CookieKey {
	return CookieKey{SessionID: c.SessionID, Name: c.Name, Domain: c.Domain, Path: c.Path}
}

// Get implements Store.
func (m *MemStore) Get(ctx context.Context, sessionID string, u *url.URL, seed map[string]string) (map[string]string, error) {
	if len(seed) > 0 {
		var rows []*Cookie
		for name, value := range seed {
			rows = append(rows, &Cookie{
				SessionID: sessionID,
				Name:      name,
				Value:     value,
				Domain:    effectiveHost(u),
				Path:      "/",
			})
		}
		if err := m.Save(ctx, rows); err != nil {
			return nil, err
		}
	}

	candidates := candidateDomains(effectiveHost(u))
	candidateSet := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		candidateSet[c] = true
	}

	m.mu.RLock()
	var matched []*Cookie
	for _, c := range m.rows {
		if c.SessionID != sessionID || !candidateSet[c.Domain] {
			continue
		}
		if c.Expires != 0 && nowUnix() > c.Expires {
			continue
		}
		if !strings.HasPrefix(u.Path, c.Path) {
			continue
		}
		matched = append(matched, c)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Domain != matched[j].Domain {
			return matched[i].Domain < matched[j].Domain
		}
		return matched[i].Path < matched[j].Path
	})

	out := make(map[string]string, len(matched))
	for _, c := range matched {
		out[c.Name] = c.Value
	}
	return out, nil
}

// Save implements Store.
func (m *MemStore) Save(ctx context.Context, rows []*Cookie) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range rows {
		if c.Value == deleteSentinel {
			delete(m.rows, keyOf(c))
			continue
		}
		cp := *c
		m.rows[keyOf(&cp)] = &cp
	}
	return nil
}

// Delete implements Store.
func (m *MemStore) Delete(ctx context.Context, keys []CookieKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.rows, k)
	}
	return nil
}

// Clear implements Store.
func (m *MemStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.rows {
		if k.SessionID == sessionID {
			delete(m.rows, k)
		}
	}
	return nil
}

// Unset implements Store.
func (m *MemStore) Unset(ctx context.Context, sessionID string, keys []UnsetKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.rows {
		if k.SessionID != sessionID {
			continue
		}
		for _, uk := range keys {
			if k.Name == uk.Name && k.Domain == uk.Domain && (uk.Path == "" || k.Path == uk.Path) {
				delete(m.rows, k)
			}
		}
	}
	return nil
}

// Close implements Store.
func (m *MemStore) Close() error { return nil }
