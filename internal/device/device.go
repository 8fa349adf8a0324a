// Package device holds the device model and its storage.
package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotFound = errors.New("device not found")
	ErrInvalid  = errors.New("invalid device")
)

// Device is a registered soho device.
type Device struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	Online   bool    `json:"online"`
	EnergyWh float64 `json:"energy_wh"` // accumulated consumption
}

func (d Device) String() string {
	return fmt.Sprintf("Device{id=%d, name=%s, kind=%s, online=%t}", d.ID, d.Name, d.Kind, d.Online)
}

// Validate checks the fields a new device must carry.
func (d Device) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if d.EnergyWh < 0 {
		return fmt.Errorf("%w: energy_wh must not be negative", ErrInvalid)
	}
	return nil
}

// Repository stores devices.
type Repository interface {
	Get(ctx context.Context, id int64) (*Device, error)
	List(ctx context.Context) ([]Device, error)
	// Save inserts d when d.ID is zero and replaces it otherwise.
	Save(ctx context.Context, d Device) (*Device, error)
	Delete(ctx context.Context, id int64) error
}

// MemoryRepository is a Repository kept in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	devices map[int64]Device
	nextID  int64
}

// NewMemoryRepository returns a repository holding seed.
func NewMemoryRepository(seed ...Device) *MemoryRepository {
	r := &MemoryRepository{devices: make(map[int64]Device, len(seed)), nextID: 1}
	for _, d := range seed {
		if d.ID == 0 {
			d.ID = r.nextID
		}
		r.devices[d.ID] = d
		if d.ID >= r.nextID {
			r.nextID = d.ID + 1
		}
	}
	return r
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return &d, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) Save(_ context.Context, d Device) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == 0 {
		d.ID = r.nextID
		r.nextID++
	} else if _, ok := r.devices[d.ID]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, d.ID)
	}
	r.devices[d.ID] = d
	return &d, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(r.devices, id)
	return nil
}
