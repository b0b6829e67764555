package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule/internal/dto"
	"github.com/noah-isme/sma-schedule/internal/models"
	appErrors "github.com/noah-isme/sma-schedule/pkg/errors"
	"github.com/noah-isme/sma-schedule/pkg/export"
)

type scheduleStore interface {
	GetByID(id int64) (*models.Schedule, error)
	List(filter models.ScheduleFilter) ([]models.Schedule, int, error)
	FindByTeacherID(teacherID int64, start, end models.Date) ([]models.Schedule, error)
	FindByRoomID(roomID int64, start, end models.Date) ([]models.Schedule, error)
	FindByClassID(classID int64) []models.Schedule
	Add(ctx context.Context, candidate models.Schedule) (*models.Schedule, error)
	AddAll(ctx context.Context, candidates []models.Schedule) ([]models.Schedule, error)
	Update(ctx context.Context, candidate models.Schedule) (*models.Schedule, error)
	Cancel(ctx context.Context, id int64) (*models.Schedule, error)
	Delete(ctx context.Context, id int64) error
}

type scheduleExporter interface {
	Export(ctx context.Context, filter models.ScheduleFilter, format export.Format) (*ExportResult, error)
}

// BulkCreateSchedulesResult summarises bulk creation results.
type BulkCreateSchedulesResult struct {
	Created   []models.Schedule         `json:"created"`
	Failures  []dto.BulkFailure         `json:"failures,omitempty"`
	Conflicts []models.ScheduleConflict `json:"conflicts,omitempty"`
}

// ScheduleService validates request payloads and translates them into store operations.
type ScheduleService struct {
	store     scheduleStore
	exporter  scheduleExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService instantiates ScheduleService.
func NewScheduleService(store scheduleStore, exporter scheduleExporter, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{store: store, exporter: exporter, validator: validate, logger: logger}
}

// List returns schedules with pagination metadata.
func (s *ScheduleService) List(ctx context.Context, query dto.ScheduleQuery) ([]models.Schedule, *models.Pagination, error) {
	filter, err := s.toFilter(query)
	if err != nil {
		return nil, nil, err
	}
	schedules, total, err := s.store.List(filter)
	if err != nil {
		return nil, nil, err
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	return schedules, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one schedule.
func (s *ScheduleService) Get(ctx context.Context, id int64) (*models.Schedule, error) {
	return s.store.GetByID(id)
}

// ListByTeacher returns a teacher's active sessions within the inclusive date range.
func (s *ScheduleService) ListByTeacher(ctx context.Context, teacherID int64, query dto.DateRangeQuery) ([]models.Schedule, error) {
	from, to, err := s.parseRange(query)
	if err != nil {
		return nil, err
	}
	return s.store.FindByTeacherID(teacherID, from, to)
}

// ListByRoom returns a room's active sessions within the inclusive date range.
func (s *ScheduleService) ListByRoom(ctx context.Context, roomID int64, query dto.DateRangeQuery) ([]models.Schedule, error) {
	from, to, err := s.parseRange(query)
	if err != nil {
		return nil, err
	}
	return s.store.FindByRoomID(roomID, from, to)
}

// ListByClass returns every active session of a class.
func (s *ScheduleService) ListByClass(ctx context.Context, classID int64) ([]models.Schedule, error) {
	return s.store.FindByClassID(classID), nil
}

// Create books a new session after validation and conflict detection.
func (s *ScheduleService) Create(ctx context.Context, req dto.CreateScheduleRequest) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	candidate, err := fromCreateRequest(req)
	if err != nil {
		return nil, err
	}
	return s.store.Add(ctx, candidate)
}

// BulkCreate books several sessions. Without PartialOnError nothing is stored when any item fails.
func (s *ScheduleService) BulkCreate(ctx context.Context, req dto.BulkCreateSchedulesRequest) (*BulkCreateSchedulesResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk schedule payload")
	}

	candidates := make([]models.Schedule, 0, len(req.Items))
	for _, item := range req.Items {
		candidate, err := fromCreateRequest(item)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}

	if !req.PartialOnError {
		created, err := s.store.AddAll(ctx, candidates)
		if err != nil {
			return nil, err
		}
		return &BulkCreateSchedulesResult{Created: created}, nil
	}

	result := &BulkCreateSchedulesResult{Created: []models.Schedule{}}
	for i, candidate := range candidates {
		stored, err := s.store.Add(ctx, candidate)
		if err == nil {
			result.Created = append(result.Created, *stored)
			continue
		}
		appErr := appErrors.FromError(err)
		if appErr.Status >= 500 {
			return nil, err
		}
		result.Failures = append(result.Failures, dto.BulkFailure{Index: i, Code: appErr.Code, Message: appErr.Message})
		var conflictErr *models.ScheduleConflictError
		if errors.As(err, &conflictErr) {
			result.Conflicts = append(result.Conflicts, conflictErr.Conflicts...)
		}
	}
	s.logger.Info("bulk schedule request processed",
		zap.Int("created", len(result.Created)), zap.Int("failed", len(result.Failures)))
	return result, nil
}

// Update replaces a stored session.
func (s *ScheduleService) Update(ctx context.Context, id int64, req dto.UpdateScheduleRequest) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	candidate, err := buildSchedule(req.ClassID, req.TeacherID, req.RoomID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	candidate.ID = id
	// An omitted status keeps the stored one.
	if req.Status != "" {
		status, err := models.ParseScheduleStatus(req.Status)
		if err != nil {
			return nil, err
		}
		candidate.Status = status
	}
	return s.store.Update(ctx, candidate)
}

// Cancel marks a session cancelled.
func (s *ScheduleService) Cancel(ctx context.Context, id int64) (*models.Schedule, error) {
	return s.store.Cancel(ctx, id)
}

// Delete removes a session; unknown ids succeed.
func (s *ScheduleService) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// Export renders the sessions matching query in the requested format.
func (s *ScheduleService) Export(ctx context.Context, query dto.ScheduleQuery, format string) (*ExportResult, error) {
	if s.exporter == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export is not configured")
	}
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	filter, err := s.toFilter(query)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, filter, parsed)
}

func (s *ScheduleService) toFilter(query dto.ScheduleQuery) (models.ScheduleFilter, error) {
	if err := s.validator.Struct(query); err != nil {
		return models.ScheduleFilter{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule filter")
	}
	filter := models.ScheduleFilter{
		TeacherID:        query.TeacherID,
		RoomID:           query.RoomID,
		ClassID:          query.ClassID,
		IncludeCancelled: query.IncludeCancelled,
		Page:             query.Page,
		PageSize:         query.PageSize,
	}
	var err error
	if query.From != "" {
		if filter.From, err = models.ParseDate(query.From); err != nil {
			return models.ScheduleFilter{}, err
		}
	}
	if query.To != "" {
		if filter.To, err = models.ParseDate(query.To); err != nil {
			return models.ScheduleFilter{}, err
		}
	}
	return filter, nil
}

func (s *ScheduleService) parseRange(query dto.DateRangeQuery) (models.Date, models.Date, error) {
	if err := s.validator.Struct(query); err != nil {
		return models.Date{}, models.Date{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "from and to dates are required")
	}
	from, err := models.ParseDate(query.From)
	if err != nil {
		return models.Date{}, models.Date{}, err
	}
	to, err := models.ParseDate(query.To)
	if err != nil {
		return models.Date{}, models.Date{}, err
	}
	return from, to, nil
}

func fromCreateRequest(req dto.CreateScheduleRequest) (models.Schedule, error) {
	candidate, err := buildSchedule(req.ClassID, req.TeacherID, req.RoomID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return models.Schedule{}, err
	}
	candidate.ID = req.ID
	candidate.Status = models.ScheduleStatusActive
	return candidate, nil
}

func buildSchedule(classID, teacherID, roomID int64, date, start, end string) (models.Schedule, error) {
	day, err := models.ParseDate(date)
	if err != nil {
		return models.Schedule{}, err
	}
	timeRange, err := models.ParseTimeRange(start, end)
	if err != nil {
		return models.Schedule{}, err
	}
	return models.Schedule{
		ClassID:   classID,
		TeacherID: teacherID,
		RoomID:    roomID,
		Date:      day,
		Time:      timeRange,
	}, nil
}
