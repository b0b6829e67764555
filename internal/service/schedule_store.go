package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule/internal/models"
	appErrors "github.com/noah-isme/sma-schedule/pkg/errors"
	"github.com/noah-isme/sma-schedule/pkg/middleware/requestid"
)

const scheduleEntity = "schedule"

// SchedulePersister writes the whole schedule set through to durable storage.
type SchedulePersister interface {
	Load(ctx context.Context) ([]models.Schedule, error)
	Save(ctx context.Context, schedules []models.Schedule) error
}

// IDGenerator hands out ids from the counter shared by every entity type.
type IDGenerator interface {
	Next(ctx context.Context, entity string) (int64, error)
	EnsureAbove(ctx context.Context, id int64) error
}

type idSet map[int64]struct{}

func (s idSet) add(id int64)    { s[id] = struct{}{} }
func (s idSet) remove(id int64) { delete(s, id) }

// ScheduleStore is the authoritative in-memory schedule set. Mutations are validated,
// persisted and only then committed, one at a time; readers never see a half-applied change.
type ScheduleStore struct {
	writeMu sync.Mutex
	loaded  atomic.Bool

	mu        sync.RWMutex
	schedules map[int64]models.Schedule
	byDate    map[models.Date]idSet
	byTeacher map[int64]idSet
	byRoom    map[int64]idSet
	byClass   map[int64]idSet

	dirs      Directories
	detector  ConflictDetector
	persister SchedulePersister
	ids       IDGenerator
	notifier  *ChangeNotifier
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewScheduleStore wires the store. Call Load before serving requests.
func NewScheduleStore(persister SchedulePersister, ids IDGenerator, dirs Directories, notifier *ChangeNotifier, metrics *MetricsService, logger *zap.Logger) *ScheduleStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewChangeNotifier(logger)
	}
	s := &ScheduleStore{
		dirs:      dirs,
		detector:  LinearConflictDetector{},
		persister: persister,
		ids:       ids,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
	}
	s.reset(nil)
	return s
}

// UseConflictDetector swaps the conflict detection strategy.
func (s *ScheduleStore) UseConflictDetector(d ConflictDetector) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if d != nil {
		s.detector = d
	}
}

// Notifier exposes listener registration.
func (s *ScheduleStore) Notifier() *ChangeNotifier {
	return s.notifier
}

// Load replaces the in-memory set with the durable record. An unreadable record is logged
// and the store starts empty; only failing to repair the id counter is returned.
func (s *ScheduleStore) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	loaded, err := s.persister.Load(ctx)
	if err != nil {
		s.logger.Warn("schedule record unreadable, starting with an empty schedule set", zap.Error(err))
		loaded = nil
	}

	s.mu.Lock()
	s.reset(loaded)
	s.mu.Unlock()

	var maxID int64
	for _, sched := range loaded {
		if sched.ID > maxID {
			maxID = sched.ID
		}
	}
	if maxID > 0 && s.ids != nil {
		if err := s.ids.EnsureAbove(ctx, maxID); err != nil {
			return appErrors.WrapKind(err, appErrors.ErrPersistence, "failed to reconcile id sequence")
		}
	}
	s.recordTotals()
	s.loaded.Store(true)
	s.logger.Info("schedules loaded", zap.Int("count", len(loaded)), zap.Int64("max_id", maxID))
	return nil
}

// Loaded reports whether Load has completed.
func (s *ScheduleStore) Loaded() bool {
	return s.loaded.Load()
}

// GetByID returns the schedule stored under id, whatever its status.
func (s *ScheduleStore) GetByID(id int64) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %d not found", id))
	}
	return &sched, nil
}

// GetAll returns every stored schedule, active and cancelled.
func (s *ScheduleStore) GetAll() []models.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, sched)
	}
	sortSchedules(out)
	return out
}

// FindByDateRange returns active schedules dated within [start, end].
func (s *ScheduleStore) FindByDateRange(start, end models.Date) ([]models.Schedule, error) {
	if err := validateDateBounds(start, end); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Schedule
	for date, ids := range s.byDate {
		if date.Before(start) || date.After(end) {
			continue
		}
		out = s.appendActive(out, ids, nil)
	}
	sortSchedules(out)
	return out, nil
}

// FindByTeacherID returns the teacher's active schedules dated within [start, end].
func (s *ScheduleStore) FindByTeacherID(teacherID int64, start, end models.Date) ([]models.Schedule, error) {
	return s.findIndexedInRange(func() idSet { return s.byTeacher[teacherID] }, start, end)
}

// FindByRoomID returns the room's active schedules dated within [start, end].
func (s *ScheduleStore) FindByRoomID(roomID int64, start, end models.Date) ([]models.Schedule, error) {
	return s.findIndexedInRange(func() idSet { return s.byRoom[roomID] }, start, end)
}

// FindByClassID returns the full active history of a class.
func (s *ScheduleStore) FindByClassID(classID int64) []models.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.appendActive(nil, s.byClass[classID], nil)
	sortSchedules(out)
	return out
}

// Matching returns every schedule matching filter, ignoring its paging fields. The result is
// taken under one read lock, so it reflects a single committed state.
func (s *ScheduleStore) Matching(filter models.ScheduleFilter) ([]models.Schedule, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() {
		if err := validateDateBounds(filter.From, filter.To); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	matched := make([]models.Schedule, 0)
	for _, sched := range s.schedules {
		if matchesFilter(sched, filter) {
			matched = append(matched, sched)
		}
	}
	s.mu.RUnlock()
	sortSchedules(matched)
	return matched, nil
}

// List applies filter and pagination; it backs the HTTP listing.
func (s *ScheduleStore) List(filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	matched, err := s.Matching(filter)
	if err != nil {
		return nil, 0, err
	}

	total := len(matched)
	page, size := normalizePage(filter.Page, filter.PageSize)
	startIdx := (page - 1) * size
	if startIdx >= total {
		return []models.Schedule{}, total, nil
	}
	endIdx := startIdx + size
	if endIdx > total {
		endIdx = total
	}
	return matched[startIdx:endIdx], total, nil
}

// Add validates, persists and stores a new schedule. An id of 0 is assigned from the shared sequence.
func (s *ScheduleStore) Add(ctx context.Context, candidate models.Schedule) (*models.Schedule, error) {
	start := time.Now()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.add(ctx, candidate)
	s.metrics.ObserveScheduleMutation("add", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	s.log(ctx).Info("schedule added", scheduleFields(*stored)...)
	return stored, nil
}

func (s *ScheduleStore) add(ctx context.Context, candidate models.Schedule) (*models.Schedule, error) {
	candidate, err := s.validate(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if candidate.ID < 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "schedule id must be positive")
	}
	if candidate.ID > 0 {
		if _, exists := s.lookup(candidate.ID); exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("schedule %d already exists", candidate.ID))
		}
	}
	if err := s.checkConflicts(ctx, candidate, 0); err != nil {
		return nil, err
	}

	if candidate.ID == 0 {
		id, err := s.ids.Next(ctx, scheduleEntity)
		if err != nil {
			return nil, appErrors.WrapKind(err, appErrors.ErrPersistence, "failed to allocate schedule id")
		}
		candidate.ID = id
	} else if err := s.ids.EnsureAbove(ctx, candidate.ID); err != nil {
		return nil, appErrors.WrapKind(err, appErrors.ErrPersistence, "failed to reserve schedule id")
	}

	if err := s.persist(ctx, []models.Schedule{candidate}, 0); err != nil {
		return nil, err
	}
	s.commit(candidate, nil)
	s.notifier.NotifyChanged()
	return &candidate, nil
}

// AddAll stores every candidate or none of them. Candidates are checked against the stored
// set and against each other, written through once and announced with a single notification.
// The returned error names the index of the first rejected candidate.
func (s *ScheduleStore) AddAll(ctx context.Context, candidates []models.Schedule) ([]models.Schedule, error) {
	start := time.Now()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.addAll(ctx, candidates)
	s.metrics.ObserveScheduleMutation("add_all", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	s.log(ctx).Info("schedules added", zap.Int("count", len(stored)))
	return stored, nil
}

func (s *ScheduleStore) addAll(ctx context.Context, candidates []models.Schedule) ([]models.Schedule, error) {
	if len(candidates) == 0 {
		return []models.Schedule{}, nil
	}
	accepted := make([]models.Schedule, 0, len(candidates))
	supplied := make(map[int64]struct{})
	for i, candidate := range candidates {
		candidate, err := s.validate(ctx, candidate)
		if err != nil {
			return nil, batchError(i, err)
		}
		if candidate.ID < 0 {
			return nil, batchError(i, appErrors.Clone(appErrors.ErrInvalidArgument, "schedule id must be positive"))
		}
		if candidate.ID > 0 {
			_, exists := s.lookup(candidate.ID)
			_, repeated := supplied[candidate.ID]
			if exists || repeated {
				return nil, batchError(i, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("schedule %d already exists", candidate.ID)))
			}
			supplied[candidate.ID] = struct{}{}
		}
		if err := s.checkConflicts(ctx, candidate, 0, accepted...); err != nil {
			return nil, batchError(i, err)
		}
		accepted = append(accepted, candidate)
	}

	for i := range accepted {
		if accepted[i].ID != 0 {
			if err := s.ids.EnsureAbove(ctx, accepted[i].ID); err != nil {
				return nil, appErrors.WrapKind(err, appErrors.ErrPersistence, "failed to reserve schedule id")
			}
			continue
		}
		id, err := s.nextFreeID(ctx, supplied)
		if err != nil {
			return nil, err
		}
		accepted[i].ID = id
	}

	if err := s.persist(ctx, accepted, 0); err != nil {
		return nil, err
	}
	for _, sched := range accepted {
		s.commit(sched, nil)
	}
	s.notifier.NotifyChanged()
	return accepted, nil
}

// nextFreeID draws from the sequence, skipping ids a batch already claimed explicitly.
func (s *ScheduleStore) nextFreeID(ctx context.Context, claimed map[int64]struct{}) (int64, error) {
	for {
		id, err := s.ids.Next(ctx, scheduleEntity)
		if err != nil {
			return 0, appErrors.WrapKind(err, appErrors.ErrPersistence, "failed to allocate schedule id")
		}
		if _, taken := claimed[id]; !taken {
			return id, nil
		}
	}
}

func batchError(index int, err error) error {
	appErr := appErrors.FromError(err)
	return &appErrors.Error{
		Code:    appErr.Code,
		Status:  appErr.Status,
		Message: fmt.Sprintf("item %d: %s", index, appErr.Message),
		Err:     err,
	}
}

// Update replaces an existing schedule after re-validating it against every other schedule.
// An empty Status keeps the stored status.
func (s *ScheduleStore) Update(ctx context.Context, candidate models.Schedule) (*models.Schedule, error) {
	start := time.Now()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.update(ctx, candidate)
	s.metrics.ObserveScheduleMutation("update", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	s.log(ctx).Info("schedule updated", scheduleFields(*stored)...)
	return stored, nil
}

func (s *ScheduleStore) update(ctx context.Context, candidate models.Schedule) (*models.Schedule, error) {
	previous, exists := s.lookup(candidate.ID)
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %d not found", candidate.ID))
	}
	if candidate.Status == "" {
		candidate.Status = previous.Status
	}
	candidate, err := s.validate(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if err := s.checkConflicts(ctx, candidate, candidate.ID); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, []models.Schedule{candidate}, 0); err != nil {
		return nil, err
	}
	s.commit(candidate, &previous)
	s.notifier.NotifyChanged()
	return &candidate, nil
}

// Cancel marks a schedule cancelled. The record is kept for audit but no longer blocks its
// teacher, room or class. Cancelling an already cancelled schedule is a no-op.
func (s *ScheduleStore) Cancel(ctx context.Context, id int64) (*models.Schedule, error) {
	start := time.Now()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.cancel(ctx, id)
	s.metrics.ObserveScheduleMutation("cancel", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *ScheduleStore) cancel(ctx context.Context, id int64) (*models.Schedule, error) {
	previous, exists := s.lookup(id)
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %d not found", id))
	}
	if !previous.IsActive() {
		return &previous, nil
	}
	cancelled := previous
	cancelled.Status = models.ScheduleStatusCancelled
	if err := s.persist(ctx, []models.Schedule{cancelled}, 0); err != nil {
		return nil, err
	}
	s.commit(cancelled, &previous)
	s.notifier.NotifyChanged()
	s.log(ctx).Info("schedule cancelled", scheduleFields(cancelled)...)
	return &cancelled, nil
}

// Delete removes a schedule. Deleting an unknown id succeeds without side effects.
func (s *ScheduleStore) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.delete(ctx, id)
	s.metrics.ObserveScheduleMutation("delete", err, time.Since(start))
	return err
}

func (s *ScheduleStore) delete(ctx context.Context, id int64) error {
	previous, exists := s.lookup(id)
	if !exists {
		return nil
	}
	if err := s.persist(ctx, nil, id); err != nil {
		return err
	}
	s.commit(models.Schedule{}, &previous)
	s.notifier.NotifyChanged()
	s.log(ctx).Info("schedule deleted", zap.Int64("schedule_id", id))
	return nil
}

// validate normalises the status and checks references and the time range.
func (s *ScheduleStore) validate(ctx context.Context, candidate models.Schedule) (models.Schedule, error) {
	status, err := models.ParseScheduleStatus(string(candidate.Status))
	if err != nil {
		return candidate, err
	}
	candidate.Status = status

	if err := s.dirs.Validate(ctx, candidate); err != nil {
		return candidate, err
	}
	if candidate.Date.IsZero() {
		return candidate, appErrors.Clone(appErrors.ErrInvalidArgument, "schedule date is required")
	}
	if err := candidate.Time.Validate(); err != nil {
		return candidate, err
	}
	return candidate, nil
}

// checkConflicts compares the candidate with every schedule on the same date plus any
// pending batch members. Only the writer calls it, so the index cannot change before the commit.
func (s *ScheduleStore) checkConflicts(ctx context.Context, candidate models.Schedule, excludeID int64, pending ...models.Schedule) error {
	s.mu.RLock()
	sameDay := s.appendAll(nil, s.byDate[candidate.Date])
	s.mu.RUnlock()
	sortSchedules(sameDay)
	sameDay = append(sameDay, pending...)

	colliding := s.detector.FindConflicts(candidate, sameDay, excludeID)
	if len(colliding) == 0 {
		return nil
	}
	conflictErr := models.NewScheduleConflictError(candidate, colliding)
	for _, c := range conflictErr.Conflicts {
		s.metrics.RecordScheduleConflict(c.Dimensions)
	}
	s.log(ctx).Info("schedule rejected by conflict check",
		zap.Int64("teacher_id", candidate.TeacherID),
		zap.Int64("room_id", candidate.RoomID),
		zap.Int64("class_id", candidate.ClassID),
		zap.Stringer("date", candidate.Date),
		zap.Stringer("time", candidate.Time),
		zap.Int("conflicts", len(colliding)),
	)
	return appErrors.Wrap(conflictErr, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, "schedule conflict: "+conflictErr.Message)
}

// persist writes the prospective state: the current set with upserts applied and removeID
// dropped (when non-zero). Memory is untouched on failure.
func (s *ScheduleStore) persist(ctx context.Context, upserts []models.Schedule, removeID int64) error {
	replaced := make(map[int64]struct{}, len(upserts))
	for _, u := range upserts {
		replaced[u.ID] = struct{}{}
	}
	s.mu.RLock()
	next := make([]models.Schedule, 0, len(s.schedules)+len(upserts))
	for id, sched := range s.schedules {
		if _, skip := replaced[id]; skip || id == removeID {
			continue
		}
		next = append(next, sched)
	}
	s.mu.RUnlock()
	next = append(next, upserts...)

	if err := s.persister.Save(ctx, next); err != nil {
		s.metrics.RecordPersistenceFailure()
		s.log(ctx).Error("failed to persist schedules", zap.Error(err))
		return appErrors.WrapKind(err, appErrors.ErrPersistence, "")
	}
	return nil
}

// commit swaps previous for next in the primary map and every index. A zero next removes.
func (s *ScheduleStore) commit(next models.Schedule, previous *models.Schedule) {
	s.mu.Lock()
	if previous != nil {
		s.unindex(*previous)
		delete(s.schedules, previous.ID)
	}
	if next.ID != 0 {
		s.schedules[next.ID] = next
		s.index(next)
	}
	s.mu.Unlock()
	s.recordTotals()
}

func (s *ScheduleStore) reset(loaded []models.Schedule) {
	s.schedules = make(map[int64]models.Schedule, len(loaded))
	s.byDate = make(map[models.Date]idSet)
	s.byTeacher = make(map[int64]idSet)
	s.byRoom = make(map[int64]idSet)
	s.byClass = make(map[int64]idSet)
	for _, sched := range loaded {
		s.schedules[sched.ID] = sched
		s.index(sched)
	}
}

func (s *ScheduleStore) index(sched models.Schedule) {
	addTo(s.byDate, sched.Date, sched.ID)
	addTo(s.byTeacher, sched.TeacherID, sched.ID)
	addTo(s.byRoom, sched.RoomID, sched.ID)
	addTo(s.byClass, sched.ClassID, sched.ID)
}

func (s *ScheduleStore) unindex(sched models.Schedule) {
	removeFrom(s.byDate, sched.Date, sched.ID)
	removeFrom(s.byTeacher, sched.TeacherID, sched.ID)
	removeFrom(s.byRoom, sched.RoomID, sched.ID)
	removeFrom(s.byClass, sched.ClassID, sched.ID)
}

func addTo[K comparable](index map[K]idSet, key K, id int64) {
	set, ok := index[key]
	if !ok {
		set = make(idSet)
		index[key] = set
	}
	set.add(id)
}

func removeFrom[K comparable](index map[K]idSet, key K, id int64) {
	set, ok := index[key]
	if !ok {
		return
	}
	set.remove(id)
	if len(set) == 0 {
		delete(index, key)
	}
}

func (s *ScheduleStore) lookup(id int64) (models.Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	return sched, ok
}

func (s *ScheduleStore) findIndexedInRange(set func() idSet, start, end models.Date) ([]models.Schedule, error) {
	if err := validateDateBounds(start, end); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.appendActive(nil, set(), func(sched models.Schedule) bool {
		return !sched.Date.Before(start) && !sched.Date.After(end)
	})
	sortSchedules(out)
	return out, nil
}

// appendActive must be called with mu held.
func (s *ScheduleStore) appendActive(out []models.Schedule, ids idSet, keep func(models.Schedule) bool) []models.Schedule {
	for id := range ids {
		sched := s.schedules[id]
		if !sched.IsActive() {
			continue
		}
		if keep != nil && !keep(sched) {
			continue
		}
		out = append(out, sched)
	}
	return out
}

// appendAll must be called with mu held.
func (s *ScheduleStore) appendAll(out []models.Schedule, ids idSet) []models.Schedule {
	for id := range ids {
		out = append(out, s.schedules[id])
	}
	return out
}

func (s *ScheduleStore) recordTotals() {
	if s.metrics == nil {
		return
	}
	s.mu.RLock()
	var active, cancelled int
	for _, sched := range s.schedules {
		if sched.IsActive() {
			active++
		} else {
			cancelled++
		}
	}
	s.mu.RUnlock()
	s.metrics.SetScheduleTotals(active, cancelled)
}

func validateDateBounds(start, end models.Date) error {
	if start.IsZero() || end.IsZero() {
		return appErrors.Clone(appErrors.ErrInvalidArgument, "start and end dates are required")
	}
	if end.Before(start) {
		return appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("end date %s is before start date %s", end, start))
	}
	return nil
}

func matchesFilter(sched models.Schedule, filter models.ScheduleFilter) bool {
	if !filter.IncludeCancelled && !sched.IsActive() {
		return false
	}
	if filter.TeacherID != 0 && sched.TeacherID != filter.TeacherID {
		return false
	}
	if filter.RoomID != 0 && sched.RoomID != filter.RoomID {
		return false
	}
	if filter.ClassID != 0 && sched.ClassID != filter.ClassID {
		return false
	}
	if !filter.From.IsZero() && sched.Date.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && sched.Date.After(filter.To) {
		return false
	}
	return true
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 500 {
		size = 50
	}
	return page, size
}

func sortSchedules(list []models.Schedule) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.Time.Start != b.Time.Start {
			return a.Time.Start < b.Time.Start
		}
		return a.ID < b.ID
	})
}

func scheduleFields(sched models.Schedule) []zap.Field {
	return []zap.Field{
		zap.Int64("schedule_id", sched.ID),
		zap.Int64("class_id", sched.ClassID),
		zap.Int64("teacher_id", sched.TeacherID),
		zap.Int64("room_id", sched.RoomID),
		zap.Stringer("date", sched.Date),
		zap.Stringer("time", sched.Time),
		zap.String("status", string(sched.Status)),
	}
}

func (s *ScheduleStore) log(ctx context.Context) *zap.Logger {
	if reqID := requestid.FromContext(ctx); reqID != "" {
		return s.logger.With(zap.String("request_id", reqID))
	}
	return s.logger
}
