package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/YannKr/medialink/internal/model"
)

// Memory is a Store kept entirely in process memory. It backs tests and the
// "memory" storage driver.
type Memory struct {
	mu     sync.RWMutex
	admins map[string]model.Administrator
	emails map[string]string
	media  map[string]model.MediaAsset
	views  map[string][]model.ViewLogEntry
}

func NewMemory() *Memory {
	return &Memory{
		admins: make(map[string]model.Administrator),
		emails: make(map[string]string),
		media:  make(map[string]model.MediaAsset),
		views:  make(map[string][]model.ViewLogEntry),
	}
}

func copyOTP(o *model.OTPState) *model.OTPState {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

func copyAdmin(a model.Administrator) *model.Administrator {
	a.OTP = copyOTP(a.OTP)
	a.ResetOTP = copyOTP(a.ResetOTP)
	return &a
}

func (m *Memory) CreateAdmin(_ context.Context, a *model.Administrator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(a.Email)
	if _, ok := m.emails[key]; ok {
		return ErrDuplicateEmail
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.admins[a.ID] = *copyAdmin(*a)
	m.emails[key] = a.ID
	return nil
}

func (m *Memory) GetAdminByID(_ context.Context, id string) (*model.Administrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.admins[id]
	if !ok {
		return nil, nil
	}
	return copyAdmin(a), nil
}

func (m *Memory) GetAdminByEmail(_ context.Context, email string) (*model.Administrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return copyAdmin(m.admins[id]), nil
}

func (m *Memory) UpdateAdmin(_ context.Context, a *model.Administrator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[a.ID]; !ok {
		return nil
	}
	m.admins[a.ID] = *copyAdmin(*a)
	return nil
}

func (m *Memory) ClearExpiredOTPs(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.admins {
		changed := false
		if a.OTP != nil && a.OTP.Expired(now) {
			a.OTP = nil
			changed = true
		}
		if a.ResetOTP != nil && a.ResetOTP.Expired(now) {
			a.ResetOTP = nil
			changed = true
		}
		if changed {
			m.admins[id] = a
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateMedia(_ context.Context, a *model.MediaAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.media[a.ID] = *a
	return nil
}

func (m *Memory) GetMedia(_ context.Context, id string) (*model.MediaAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.media[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) ownedBy(ownerID string) []model.MediaAsset {
	var out []model.MediaAsset
	for _, a := range m.media {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *Memory) ListMediaByOwner(_ context.Context, ownerID string, offset, limit int) ([]model.MediaAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.ownedBy(ownerID)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *Memory) CountMediaByOwner(_ context.Context, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ownedBy(ownerID)), nil
}

func (m *Memory) ListMediaIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.media))
	for id := range m.media {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) SetViewCount(_ context.Context, id string, count int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.media[id]; ok {
		a.ViewCount = count
		m.media[id] = a
	}
	return nil
}

func (m *Memory) RecordView(_ context.Context, e *model.ViewLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.media[e.MediaID]
	if !ok {
		return fmt.Errorf("record view: media %s not found", e.MediaID)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.views[e.MediaID] = append(m.views[e.MediaID], *e)
	a.ViewCount++
	m.media[e.MediaID] = a
	return nil
}

func (m *Memory) ListViews(_ context.Context, q ViewQuery) ([]model.ViewLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ViewLogEntry
	for _, e := range m.views[q.MediaID] {
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if q.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (m *Memory) CountViews(_ context.Context, mediaID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.views[mediaID])), nil
}
