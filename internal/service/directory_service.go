package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule/internal/models"
	appErrors "github.com/noah-isme/sma-schedule/pkg/errors"
)

// TeacherDirectory resolves teacher ids. Exists is false for unknown or inactive teachers.
type TeacherDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
	FindByID(ctx context.Context, id int64) (*models.Teacher, error)
}

// RoomDirectory resolves room ids.
type RoomDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
	FindByID(ctx context.Context, id int64) (*models.Room, error)
}

// ClassDirectory resolves class ids.
type ClassDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
	FindByID(ctx context.Context, id int64) (*models.Class, error)
}

// Directories groups the rosters a schedule references.
type Directories struct {
	Teachers TeacherDirectory
	Rooms    RoomDirectory
	Classes  ClassDirectory
}

type existenceCheck struct {
	kind  string
	id    int64
	check func(context.Context, int64) (bool, error)
}

// Validate fails with REFERENCE_NOT_FOUND naming every dangling reference of sched.
func (d Directories) Validate(ctx context.Context, sched models.Schedule) error {
	checks := []existenceCheck{
		{kind: "teacher", id: sched.TeacherID, check: existsFn(d.Teachers)},
		{kind: "room", id: sched.RoomID, check: existsFn(d.Rooms)},
		{kind: "class", id: sched.ClassID, check: existsFn(d.Classes)},
	}

	var missing []string
	for _, c := range checks {
		if c.id <= 0 {
			missing = append(missing, fmt.Sprintf("%s %d", c.kind, c.id))
			continue
		}
		if c.check == nil {
			return appErrors.Clone(appErrors.ErrInternal, c.kind+" directory is not configured")
		}
		ok, err := c.check(ctx, c.id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve "+c.kind)
		}
		if !ok {
			missing = append(missing, fmt.Sprintf("%s %d", c.kind, c.id))
		}
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrReferenceNotFound, "unknown "+strings.Join(missing, ", "))
	}
	return nil
}

type existenceChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

func existsFn(dir existenceChecker) func(context.Context, int64) (bool, error) {
	if dir == nil {
		return nil
	}
	return dir.Exists
}

type lookupDirectory[T any] interface {
	Exists(ctx context.Context, id int64) (bool, error)
	FindByID(ctx context.Context, id int64) (*T, error)
}

// CachedDirectory keeps resolved roster entries in the cache for name lookups (exports).
// Exists always asks the wrapped directory, so a deactivated or removed teacher, room or
// class fails validation as soon as the roster says so.
type CachedDirectory[T any] struct {
	inner  lookupDirectory[T]
	cache  *CacheService
	kind   string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedDirectory wraps inner. With a disabled cache it simply delegates.
func NewCachedDirectory[T any](inner lookupDirectory[T], cache *CacheService, kind string, ttl time.Duration, logger *zap.Logger) *CachedDirectory[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedDirectory[T]{inner: inner, cache: cache, kind: kind, ttl: ttl, logger: logger}
}

func (d *CachedDirectory[T]) key(id int64) string {
	return fmt.Sprintf("%s:%d", d.kind, id)
}

// Exists reads through to the wrapped directory.
func (d *CachedDirectory[T]) Exists(ctx context.Context, id int64) (bool, error) {
	return d.inner.Exists(ctx, id)
}

// FindByID serves the entry from the cache when present, otherwise loads and caches it.
// Lookup errors, including not-found, are never cached.
func (d *CachedDirectory[T]) FindByID(ctx context.Context, id int64) (*T, error) {
	var cached T
	if hit, err := d.cache.Get(ctx, d.key(id), &cached); err == nil && hit {
		return &cached, nil
	}

	item, err := d.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.cache.Set(ctx, d.key(id), item, d.ttl); err != nil {
		d.logger.Debug("directory cache write skipped", zap.String("kind", d.kind), zap.Int64("id", id), zap.Error(err))
	}
	return item, nil
}

// Forget drops the cached entry for id, e.g. after a teacher is renamed.
func (d *CachedDirectory[T]) Forget(ctx context.Context, id int64) error {
	return d.cache.Invalidate(ctx, d.key(id))
}
