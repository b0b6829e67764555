package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/noah-isme/sma-schedule/internal/models"
	"github.com/noah-isme/sma-schedule/pkg/storage"
)

// MemoryDirectory is an in-process lookup table used when no roster database is configured.
// Missing ids are reported with sql.ErrNoRows, the same way the sqlx repositories do.
type MemoryDirectory[T any] struct {
	mu     sync.RWMutex
	items  map[int64]T
	usable func(T) bool
}

// NewMemoryDirectory builds an empty directory. usable may be nil; when set, Exists
// only reports items for which it returns true.
func NewMemoryDirectory[T any](usable func(T) bool) *MemoryDirectory[T] {
	return &MemoryDirectory[T]{items: make(map[int64]T), usable: usable}
}

// Put inserts or replaces the item stored under id.
func (d *MemoryDirectory[T]) Put(id int64, item T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[id] = item
}

// Remove drops id from the directory.
func (d *MemoryDirectory[T]) Remove(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, id)
}

// FindByID returns a copy of the stored item.
func (d *MemoryDirectory[T]) FindByID(ctx context.Context, id int64) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

// Exists reports whether id resolves to a usable item.
func (d *MemoryDirectory[T]) Exists(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.items[id]
	if !ok {
		return false, nil
	}
	if d.usable != nil && !d.usable(item) {
		return false, nil
	}
	return true, nil
}

// MemoryDirectories bundles the three rosters the scheduler validates against.
type MemoryDirectories struct {
	Teachers *MemoryDirectory[models.Teacher]
	Rooms    *MemoryDirectory[models.Room]
	Classes  *MemoryDirectory[models.Class]
}

// NewMemoryDirectories builds empty rosters; inactive teachers do not resolve.
func NewMemoryDirectories() *MemoryDirectories {
	return &MemoryDirectories{
		Teachers: NewMemoryDirectory(func(t models.Teacher) bool { return t.Active }),
		Rooms:    NewMemoryDirectory[models.Room](nil),
		Classes:  NewMemoryDirectory[models.Class](nil),
	}
}

type directorySeed struct {
	Teachers []models.Teacher `json:"teachers"`
	Rooms    []models.Room    `json:"rooms"`
	Classes  []models.Class   `json:"classes"`
}

// LoadSeed fills the rosters from a JSON document {"teachers":[],"rooms":[],"classes":[]}.
// A missing file leaves the rosters empty.
func (m *MemoryDirectories) LoadSeed(store *storage.LocalStorage, filename string) (int, error) {
	raw, err := store.Read(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read directory seed: %w", err)
	}
	var seed directorySeed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return 0, fmt.Errorf("decode directory seed: %w", err)
	}
	for _, t := range seed.Teachers {
		m.Teachers.Put(t.ID, t)
	}
	for _, r := range seed.Rooms {
		m.Rooms.Put(r.ID, r)
	}
	for _, c := range seed.Classes {
		m.Classes.Put(c.ID, c)
	}
	return len(seed.Teachers) + len(seed.Rooms) + len(seed.Classes), nil
}
