// Package vault stores block payloads by content uid.
package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"bm-go/internal/bm"
)

// MemoryVault keeps payloads in a map. Safe for concurrent use.
type MemoryVault struct {
	mu       sync.RWMutex
	payloads map[string][]byte
}

var _ bm.Vault = (*MemoryVault)(nil)

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{payloads: make(map[string][]byte)}
}

func (m *MemoryVault) WritePayload(ctx context.Context, r io.Reader, size int64) (string, error) {
	data, err := readExactly(r, size)
	if err != nil {
		return "", err
	}

	uid := bm.NewContentUID()
	m.mu.Lock()
	m.payloads[uid] = data
	m.mu.Unlock()
	return uid, nil
}

func (m *MemoryVault) ReadPayload(ctx context.Context, uid string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.payloads[uid]
	m.mu.RUnlock()
	if !ok {
		return notFound(uid)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("copying payload %s: %w", uid, err)
	}
	return nil
}

func (m *MemoryVault) DeletePayload(ctx context.Context, uid string) error {
	m.mu.Lock()
	delete(m.payloads, uid)
	m.mu.Unlock()
	return nil
}

func (m *MemoryVault) ListPayloads(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var uids []string
	for uid := range m.payloads {
		if strings.HasPrefix(uid, prefix) {
			uids = append(uids, uid)
		}
	}
	sort.Strings(uids)
	return uids, nil
}

func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

// Len returns the number of stored payloads.
func (m *MemoryVault) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payloads)
}

func readExactly(r io.Reader, size int64) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	return data, nil
}

func notFound(uid string) error {
	return fmt.Errorf("payload %s: %w", uid, bm.ErrNotFound)
}
