package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-schedule/internal/models"
	"github.com/noah-isme/sma-schedule/internal/repository"
	appErrors "github.com/noah-isme/sma-schedule/pkg/errors"
	"github.com/noah-isme/sma-schedule/pkg/middleware/requestid"
	"github.com/noah-isme/sma-schedule/pkg/storage"
)

type memPersister struct {
	mu      sync.Mutex
	saved   []models.Schedule
	saves   int
	saveErr error
	loadErr error
}

func (p *memPersister) Load(ctx context.Context) ([]models.Schedule, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	return append([]models.Schedule(nil), p.saved...), nil
}

func (p *memPersister) Save(ctx context.Context, schedules []models.Schedule) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saves++
	p.saved = append([]models.Schedule(nil), schedules...)
	return nil
}

type counterIDs struct {
	mu      sync.Mutex
	next    int64
	ensured int64
}

func (c *counterIDs) Next(ctx context.Context, entity string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next == 0 {
		c.next = 1
	}
	id := c.next
	c.next++
	return id, nil
}

func (c *counterIDs) EnsureAbove(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensured = id
	if c.next <= id {
		c.next = id + 1
	}
	return nil
}

func seededDirectories() Directories {
	dirs := repository.NewMemoryDirectories()
	for id := int64(1); id <= 3; id++ {
		dirs.Teachers.Put(id, models.Teacher{ID: id, FullName: "Teacher", Active: true})
		dirs.Rooms.Put(id, models.Room{ID: id, Name: "Room"})
		dirs.Classes.Put(id, models.Class{ID: id, Name: "Class"})
	}
	dirs.Teachers.Put(9, models.Teacher{ID: 9, FullName: "Retired", Active: false})
	return Directories{Teachers: dirs.Teachers, Rooms: dirs.Rooms, Classes: dirs.Classes}
}

type storeFixture struct {
	store     *ScheduleStore
	persister *memPersister
	ids       *counterIDs
	notified  *int32
}

func newStoreFixture(t *testing.T) storeFixture {
	t.Helper()
	persister := &memPersister{}
	ids := &counterIDs{}
	store := NewScheduleStore(persister, ids, seededDirectories(), nil, NewMetricsService(), zap.NewNop())
	require.NoError(t, store.Load(context.Background()))
	var notified int32
	store.Notifier().AddListener(ListenerFunc(func() { atomic.AddInt32(&notified, 1) }))
	return storeFixture{store: store, persister: persister, ids: ids, notified: &notified}
}

func session(classID, teacherID, roomID int64, date, start, end string) models.Schedule {
	return models.Schedule{
		ClassID:   classID,
		TeacherID: teacherID,
		RoomID:    roomID,
		Date:      models.MustDate(date),
		Time:      models.TimeRange{Start: models.MustTimeOfDay(start), End: models.MustTimeOfDay(end)},
	}
}

func TestAddAssignsIDAndGetByIDReturnsIt(t *testing.T) {
	f := newStoreFixture(t)
	candidate := session(1, 1, 1, "2025-03-10", "08:00", "09:00")

	stored, err := f.store.Add(context.Background(), candidate)
	require.NoError(t, err)
	assert.Greater(t, stored.ID, int64(0))
	assert.Equal(t, models.ScheduleStatusActive, stored.Status)

	got, err := f.store.GetByID(stored.ID)
	require.NoError(t, err)
	candidate.ID = stored.ID
	candidate.Status = models.ScheduleStatusActive
	assert.Equal(t, candidate, *got)
	assert.Len(t, f.persister.saved, 1)
}

func TestAddRejectsTeacherOverlap(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	first, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	_, err = f.store.Add(ctx, session(2, 1, 2, "2025-03-10", "08:30", "09:30"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrScheduleConflict)

	var conflictErr *models.ScheduleConflictError
	require.True(t, errors.As(err, &conflictErr))
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, first.ID, conflictErr.Conflicts[0].ScheduleID)
	assert.Equal(t, []string{models.DimensionTeacher}, conflictErr.Conflicts[0].Dimensions)
	assert.Len(t, f.store.GetAll(), 1)
	assert.EqualValues(t, 1, f.store.metrics.Snapshot().ConflictsTotal)
}

func TestAddRejectsRoomAndClassOverlap(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	_, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	_, err = f.store.Add(ctx, session(2, 2, 1, "2025-03-10", "08:59", "10:00"))
	assert.ErrorIs(t, err, appErrors.ErrScheduleConflict)

	_, err = f.store.Add(ctx, session(1, 3, 3, "2025-03-10", "07:00", "08:01"))
	assert.ErrorIs(t, err, appErrors.ErrScheduleConflict)
}

func TestAddAllowsSameResourcesOnDifferentDate(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	_, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	_, err = f.store.Add(ctx, session(1, 1, 1, "2025-03-11", "08:00", "09:00"))
	assert.NoError(t, err)
}

func TestAddAllowsOverlapWithoutSharedResource(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	_, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	_, err = f.store.Add(ctx, session(2, 2, 2, "2025-03-10", "08:00", "09:00"))
	assert.NoError(t, err)
}

func TestAddAllowsTouchingRanges(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	_, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	_, err = f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "09:00", "10:00"))
	assert.NoError(t, err)
}

func TestAddRejectsInvalidRange(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "09:00", "08:00"))
	assert.ErrorIs(t, err, appErrors.ErrInvalidRange)

	_, err = f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "09:00", "09:00"))
	assert.ErrorIs(t, err, appErrors.ErrInvalidRange)
	assert.Zero(t, f.persister.saves)
	assert.Zero(t, atomic.LoadInt32(f.notified))
}

func TestAddRejectsUnknownReferences(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.Add(ctx, session(1, 42, 1, "2025-03-10", "08:00", "09:00"))
	require.ErrorIs(t, err, appErrors.ErrReferenceNotFound)
	assert.Contains(t, err.Error(), "teacher 42")

	_, err = f.store.Add(ctx, session(7, 9, 8, "2025-03-10", "08:00", "09:00"))
	require.ErrorIs(t, err, appErrors.ErrReferenceNotFound)
	assert.Contains(t, err.Error(), "teacher 9")
	assert.Contains(t, err.Error(), "room 8")
	assert.Contains(t, err.Error(), "class 7")
	assert.Empty(t, f.store.GetAll())
}

func TestAddWithCallerSuppliedID(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	candidate := session(1, 1, 1, "2025-03-10", "08:00", "09:00")
	candidate.ID = 40

	stored, err := f.store.Add(ctx, candidate)
	require.NoError(t, err)
	assert.Equal(t, int64(40), stored.ID)
	assert.Equal(t, int64(40), f.ids.ensured)

	dup := session(2, 2, 2, "2025-03-12", "08:00", "09:00")
	dup.ID = 40
	_, err = f.store.Add(ctx, dup)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	next, err := f.store.Add(ctx, session(2, 2, 2, "2025-03-12", "08:00", "09:00"))
	require.NoError(t, err)
	assert.Greater(t, next.ID, int64(40))
}

func TestUpdateWithUnchangedValuesSucceeds(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	stored, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	updated, err := f.store.Update(ctx, *stored)
	require.NoError(t, err)
	assert.Equal(t, *stored, *updated)
}

func TestUpdateMovesScheduleAndReindexes(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	stored, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	moved := *stored
	moved.TeacherID = 2
	moved.Date = models.MustDate("2025-03-11")
	_, err = f.store.Update(ctx, moved)
	require.NoError(t, err)

	day := models.MustDate("2025-03-10")
	byTeacher, err := f.store.FindByTeacherID(1, day, day.AddDays(7))
	require.NoError(t, err)
	assert.Empty(t, byTeacher)
	byTeacher, err = f.store.FindByTeacherID(2, day, day.AddDays(7))
	require.NoError(t, err)
	require.Len(t, byTeacher, 1)
	assert.Equal(t, moved, byTeacher[0])

	_, err = f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	assert.NoError(t, err)
}

func TestUpdateConflictsWithOtherSchedule(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	_, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)
	second, err := f.store.Add(ctx, session(2, 2, 2, "2025-03-10", "10:00", "11:00"))
	require.NoError(t, err)

	clash := *second
	clash.RoomID = 1
	clash.Time = models.TimeRange{Start: models.MustTimeOfDay("08:30"), End: models.MustTimeOfDay("09:30")}
	_, err = f.store.Update(ctx, clash)
	assert.ErrorIs(t, err, appErrors.ErrScheduleConflict)

	got, err := f.store.GetByID(second.ID)
	require.NoError(t, err)
	assert.Equal(t, *second, *got)
}

func TestUpdateWithoutStatusKeepsStoredStatus(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	stored, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)
	_, err = f.store.Cancel(ctx, stored.ID)
	require.NoError(t, err)

	edit := session(1, 2, 1, "2025-03-10", "08:00", "09:00")
	edit.ID = stored.ID
	updated, err := f.store.Update(ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusCancelled, updated.Status)
	assert.Empty(t, f.store.FindByClassID(1))
}

func TestUpdateUnknownIDIsNotFound(t *testing.T) {
	f := newStoreFixture(t)
	candidate := session(1, 1, 1, "2025-03-10", "08:00", "09:00")
	candidate.ID = 77
	_, err := f.store.Update(context.Background(), candidate)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDeleteMissingIDIsNoop(t *testing.T) {
	f := newStoreFixture(t)
	require.NoError(t, f.store.Delete(context.Background(), 999))
	assert.Zero(t, f.persister.saves)
	assert.Zero(t, atomic.LoadInt32(f.notified))
}

func TestDeleteRemovesAndFreesResources(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	stored, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(ctx, stored.ID))
	_, err = f.store.GetByID(stored.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, f.persister.saved)

	_, err = f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	assert.NoError(t, err)
}

func TestCancelFreesResourcesButKeepsRecord(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	stored, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	cancelled, err := f.store.Cancel(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusCancelled, cancelled.Status)

	_, err = f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	day := models.MustDate("2025-03-10")
	active, err := f.store.FindByDateRange(day, day)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Len(t, f.store.GetAll(), 2)

	all, total, err := f.store.List(models.ScheduleFilter{IncludeCancelled: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)

	notified := atomic.LoadInt32(f.notified)
	again, err := f.store.Cancel(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusCancelled, again.Status)
	assert.Equal(t, notified, atomic.LoadInt32(f.notified))

	_, err = f.store.Cancel(ctx, 1234)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestFindByClassIDReturnsActiveHistory(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	past, err := f.store.Add(ctx, session(1, 1, 1, "2025-01-06", "08:00", "09:00"))
	require.NoError(t, err)
	dropped, err := f.store.Add(ctx, session(1, 1, 1, "2025-02-03", "08:00", "09:00"))
	require.NoError(t, err)
	future, err := f.store.Add(ctx, session(1, 1, 1, "2025-09-01", "08:00", "09:00"))
	require.NoError(t, err)
	_, err = f.store.Cancel(ctx, dropped.ID)
	require.NoError(t, err)

	history := f.store.FindByClassID(1)
	require.Len(t, history, 2)
	assert.Equal(t, past.ID, history[0].ID)
	assert.Equal(t, future.ID, history[1].ID)

	withCancelled, err := f.store.Matching(models.ScheduleFilter{ClassID: 1, IncludeCancelled: true})
	require.NoError(t, err)
	assert.Len(t, withCancelled, 3)
}

func TestFindByDateRange(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	for _, d := range []string{"2025-03-09", "2025-03-10", "2025-03-11"} {
		_, err := f.store.Add(ctx, session(1, 1, 1, d, "08:00", "09:00"))
		require.NoError(t, err)
	}

	day := models.MustDate("2025-03-10")
	_, err := f.store.FindByDateRange(day, day.AddDays(-1))
	assert.ErrorIs(t, err, appErrors.ErrInvalidArgument)

	single, err := f.store.FindByDateRange(day, day)
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, day, single[0].Date)

	wide, err := f.store.FindByDateRange(day.AddDays(-1), day.AddDays(1))
	require.NoError(t, err)
	require.Len(t, wide, 3)
	assert.True(t, wide[0].Date.Before(wide[1].Date))
}

func TestFindByRoomAndClass(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	_, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)
	_, err = f.store.Add(ctx, session(2, 2, 2, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)
	_, err = f.store.Add(ctx, session(1, 2, 2, "2025-06-01", "08:00", "09:00"))
	require.NoError(t, err)

	from, to := models.MustDate("2025-03-01"), models.MustDate("2025-03-31")
	rooms, err := f.store.FindByRoomID(2, from, to)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, int64(2), rooms[0].ClassID)

	_, err = f.store.FindByRoomID(2, to, from)
	assert.ErrorIs(t, err, appErrors.ErrInvalidArgument)

	history := f.store.FindByClassID(1)
	assert.Len(t, history, 2)
	assert.Empty(t, f.store.FindByClassID(3))
}

func TestListFiltersAndPaginates(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.store.Add(ctx, session(1, 1, 1, models.MustDate("2025-03-10").AddDays(i).String(), "08:00", "09:00"))
		require.NoError(t, err)
	}
	_, err := f.store.Add(ctx, session(2, 2, 2, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	page, total, err := f.store.List(models.ScheduleFilter{TeacherID: 1, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "2025-03-12", page[0].Date.String())

	page, total, err = f.store.List(models.ScheduleFilter{From: models.MustDate("2025-03-13")})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, page, 2)

	page, _, err = f.store.List(models.ScheduleFilter{Page: 10})
	require.NoError(t, err)
	assert.Empty(t, page)

	_, _, err = f.store.List(models.ScheduleFilter{From: models.MustDate("2025-03-13"), To: models.MustDate("2025-03-12")})
	assert.ErrorIs(t, err, appErrors.ErrInvalidArgument)
}

func TestMatchingIgnoresPaging(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.store.Add(ctx, session(1, 1, 1, models.MustDate("2025-03-10").AddDays(i).String(), "08:00", "09:00"))
		require.NoError(t, err)
	}

	all, err := f.store.Matching(models.ScheduleFilter{TeacherID: 1, Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2025-03-10", all[0].Date.String())

	_, err = f.store.Matching(models.ScheduleFilter{From: models.MustDate("2025-03-13"), To: models.MustDate("2025-03-12")})
	assert.ErrorIs(t, err, appErrors.ErrInvalidArgument)
}

func TestPersistenceFailureLeavesStateUnchanged(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	stored, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)
	notified := atomic.LoadInt32(f.notified)

	f.persister.saveErr = errors.New("disk full")
	_, err = f.store.Add(ctx, session(2, 2, 2, "2025-03-10", "08:00", "09:00"))
	assert.ErrorIs(t, err, appErrors.ErrPersistence)

	moved := *stored
	moved.Date = models.MustDate("2025-04-01")
	_, err = f.store.Update(ctx, moved)
	assert.ErrorIs(t, err, appErrors.ErrPersistence)

	assert.ErrorIs(t, f.store.Delete(ctx, stored.ID), appErrors.ErrPersistence)
	_, err = f.store.Cancel(ctx, stored.ID)
	assert.ErrorIs(t, err, appErrors.ErrPersistence)

	all := f.store.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, *stored, all[0])
	assert.Equal(t, notified, atomic.LoadInt32(f.notified))
	assert.EqualValues(t, 4, f.store.metrics.Snapshot().PersistenceFailures)
}

func TestNotificationsFireOncePerMutation(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	stored, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(f.notified))

	_, err = f.store.Update(ctx, *stored)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(f.notified))

	_, err = f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.Error(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(f.notified))

	require.NoError(t, f.store.Delete(ctx, stored.ID))
	assert.EqualValues(t, 3, atomic.LoadInt32(f.notified))
}

func TestLoadStartsEmptyOnUnreadableRecord(t *testing.T) {
	persister := &memPersister{loadErr: errors.New("corrupt")}
	store := NewScheduleStore(persister, &counterIDs{}, seededDirectories(), nil, nil, zap.NewNop())
	require.NoError(t, store.Load(context.Background()))
	assert.Empty(t, store.GetAll())
}

func TestLoadReconcilesIDSequence(t *testing.T) {
	existing := session(1, 1, 1, "2025-03-10", "08:00", "09:00")
	existing.ID = 12
	existing.Status = models.ScheduleStatusActive
	persister := &memPersister{saved: []models.Schedule{existing}}
	ids := &counterIDs{}

	store := NewScheduleStore(persister, ids, seededDirectories(), nil, nil, zap.NewNop())
	require.NoError(t, store.Load(context.Background()))
	assert.Equal(t, int64(12), ids.ensured)

	added, err := store.Add(context.Background(), session(2, 2, 2, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)
	assert.Equal(t, int64(13), added.ID)
}

func TestPersistReloadRoundTripWithFileBackends(t *testing.T) {
	ctx := context.Background()
	fs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	open := func() *ScheduleStore {
		seq, err := repository.NewFileSequence(fs, "sequence.json", zap.NewNop())
		require.NoError(t, err)
		repo := repository.NewScheduleFileRepository(fs, "schedules.json", zap.NewNop())
		store := NewScheduleStore(repo, seq, seededDirectories(), nil, nil, zap.NewNop())
		require.NoError(t, store.Load(ctx))
		return store
	}

	first := open()
	a, err := first.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)
	b, err := first.Add(ctx, session(2, 2, 2, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)
	_, err = first.Cancel(ctx, b.ID)
	require.NoError(t, err)
	before := first.GetAll()

	second := open()
	assert.Equal(t, before, second.GetAll())

	c, err := second.Add(ctx, session(3, 3, 3, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)
	assert.Greater(t, c.ID, b.ID)
	assert.Greater(t, b.ID, a.ID)
}

func TestConcurrentConflictingAddsAdmitOne(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var succeeded int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00")); err == nil {
				atomic.AddInt32(&succeeded, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, succeeded)
	assert.Len(t, f.store.GetAll(), 1)
}

func TestAddAllIsAtomic(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	batch := []models.Schedule{
		session(1, 1, 1, "2025-03-10", "08:00", "09:00"),
		session(2, 2, 2, "2025-03-10", "08:00", "09:00"),
		session(3, 1, 3, "2025-03-10", "08:30", "09:30"),
	}
	_, err := f.store.AddAll(ctx, batch)
	require.ErrorIs(t, err, appErrors.ErrScheduleConflict)
	assert.Contains(t, err.Error(), "item 2")
	assert.Empty(t, f.store.GetAll())
	assert.Zero(t, f.persister.saves)
	assert.Zero(t, atomic.LoadInt32(f.notified))

	stored, err := f.store.AddAll(ctx, batch[:2])
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.NotEqual(t, stored[0].ID, stored[1].ID)
	assert.Len(t, f.store.GetAll(), 2)
	assert.Equal(t, 1, f.persister.saves)
	assert.EqualValues(t, 1, atomic.LoadInt32(f.notified))
}

func TestAddAllRejectsRepeatedSuppliedIDs(t *testing.T) {
	f := newStoreFixture(t)
	a := session(1, 1, 1, "2025-03-10", "08:00", "09:00")
	a.ID = 5
	b := session(2, 2, 2, "2025-03-11", "08:00", "09:00")
	b.ID = 5

	_, err := f.store.AddAll(context.Background(), []models.Schedule{a, b})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestAddAllSkipsExplicitlyClaimedIDs(t *testing.T) {
	f := newStoreFixture(t)
	explicit := session(1, 1, 1, "2025-03-10", "08:00", "09:00")
	explicit.ID = 1
	generated := session(2, 2, 2, "2025-03-10", "08:00", "09:00")

	stored, err := f.store.AddAll(context.Background(), []models.Schedule{generated, explicit})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored[1].ID)
	assert.Greater(t, stored[0].ID, int64(1))
}

func TestMutationLogsCarryRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	store := NewScheduleStore(&memPersister{}, &counterIDs{}, seededDirectories(), nil, nil, zap.New(core))
	require.NoError(t, store.Load(context.Background()))

	ctx := requestid.WithValue(context.Background(), "req-7")
	_, err := store.Add(ctx, session(1, 1, 1, "2025-03-10", "08:00", "09:00"))
	require.NoError(t, err)

	added := logs.FilterMessage("schedule added").All()
	require.Len(t, added, 1)
	assert.Equal(t, "req-7", added[0].ContextMap()["request_id"])

	rejectCtx := requestid.WithValue(context.Background(), "req-8")
	_, err = store.Add(rejectCtx, session(2, 1, 2, "2025-03-10", "08:30", "09:30"))
	require.ErrorIs(t, err, appErrors.ErrScheduleConflict)
	rejected := logs.FilterMessage("schedule rejected by conflict check").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, "req-8", rejected[0].ContextMap()["request_id"])
}
