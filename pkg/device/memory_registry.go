package device

import (
	"context"
	"slices"
	"sync"
	"time"
)

type registrationKey struct {
	userID string
	token  string
}

// MemoryRegistry is an in-memory Registry for tests and local development.
// Insertion order is preserved so Find results are deterministic.
type MemoryRegistry struct {
	mu      sync.RWMutex
	byKey   map[registrationKey]*Device
	ordered []registrationKey
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byKey: make(map[registrationKey]*Device),
	}
}

// Upsert implements Registry.
func (r *MemoryRegistry) Upsert(ctx context.Context, userID, token string, platform Platform, departmentID *string) error {
	if userID == "" || token == "" {
		return ErrInvalidRegistration
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registrationKey{userID: userID, token: token}
	if existing, ok := r.byKey[key]; ok {
		existing.Platform = platform
		existing.DepartmentID = cloneDepartment(departmentID)
		existing.LastActiveAt = time.Now()
		return nil
	}

	r.byKey[key] = &Device{
		UserID:       userID,
		Token:        token,
		Platform:     platform,
		DepartmentID: cloneDepartment(departmentID),
		LastActiveAt: time.Now(),
	}
	r.ordered = append(r.ordered, key)
	return nil
}

// FindByUsers implements Registry.
func (r *MemoryRegistry) FindByUsers(ctx context.Context, userIDs []string) ([]Device, error) {
	return r.find(func(d *Device) bool {
		return slices.Contains(userIDs, d.UserID)
	}), nil
}

// FindByDepartments implements Registry.
func (r *MemoryRegistry) FindByDepartments(ctx context.Context, departmentIDs []string) ([]Device, error) {
	return r.find(func(d *Device) bool {
		return d.DepartmentID != nil && slices.Contains(departmentIDs, *d.DepartmentID)
	}), nil
}

// FindAll implements Registry.
func (r *MemoryRegistry) FindAll(ctx context.Context) ([]Device, error) {
	return r.find(func(*Device) bool { return true }), nil
}

// DeleteByTokens implements Registry.
func (r *MemoryRegistry) DeleteByTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ordered = slices.DeleteFunc(r.ordered, func(key registrationKey) bool {
		if slices.Contains(tokens, key.token) {
			delete(r.byKey, key)
			return true
		}
		return false
	})
	return nil
}

// DeleteByDepartment implements Registry.
func (r *MemoryRegistry) DeleteByDepartment(ctx context.Context, departmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ordered = slices.DeleteFunc(r.ordered, func(key registrationKey) bool {
		d := r.byKey[key]
		if d.DepartmentID != nil && *d.DepartmentID == departmentID {
			delete(r.byKey, key)
			return true
		}
		return false
	})
	return nil
}

func (r *MemoryRegistry) find(match func(*Device) bool) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.ordered))
	for _, key := range r.ordered {
		d := r.byKey[key]
		if match(d) {
			out = append(out, *d)
		}
	}
	return DedupeByToken(out)
}

func cloneDepartment(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
