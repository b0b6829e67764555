package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule/internal/models"
	appErrors "github.com/noah-isme/sma-schedule/pkg/errors"
	"github.com/noah-isme/sma-schedule/pkg/export"
)


type scheduleLister interface {
	Matching(filter models.ScheduleFilter) ([]models.Schedule, error)
}

// ExportResult is a rendered schedule export ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
}

// ExportService renders filtered schedules as CSV or PDF timetables with roster names resolved.
type ExportService struct {
	schedules scheduleLister
	dirs      Directories
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(schedules scheduleLister, dirs Directories, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{schedules: schedules, dirs: dirs, logger: logger, now: time.Now}
}

// Export renders every schedule matching filter; paging fields of filter are ignored.
func (s *ExportService) Export(ctx context.Context, filter models.ScheduleFilter, format export.Format) (*ExportResult, error) {
	renderer, err := export.RendererFor(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, err.Error())
	}
	schedules, err := s.collect(filter)
	if err != nil {
		return nil, err
	}
	dataset := s.buildDataset(ctx, filter, schedules)

	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	filename := fmt.Sprintf("schedules_%s.%s", s.now().UTC().Format("20060102_150405"), renderer.Extension())
	s.logger.Info("schedules exported", zap.String("format", string(format)), zap.Int("rows", len(schedules)))
	return &ExportResult{Filename: filename, ContentType: renderer.ContentType(), Payload: payload, Rows: len(schedules)}, nil
}

func (s *ExportService) collect(filter models.ScheduleFilter) ([]models.Schedule, error) {
	filter.Page, filter.PageSize = 0, 0
	return s.schedules.Matching(filter)
}

var scheduleColumns = []export.Column{
	{Key: "id", Label: "ID", Width: 0.6},
	{Key: "date", Label: "Date", Width: 1.2},
	{Key: "start", Label: "Start", Width: 0.8},
	{Key: "end", Label: "End", Width: 0.8},
	{Key: "class", Label: "Class", Width: 1.6},
	{Key: "teacher", Label: "Teacher", Width: 2.2},
	{Key: "room", Label: "Room", Width: 1.4},
	{Key: "status", Label: "Status", Width: 1},
}

func (s *ExportService) buildDataset(ctx context.Context, filter models.ScheduleFilter, schedules []models.Schedule) export.Dataset {
	names := newNameResolver(s.dirs)
	rows := make([]map[string]string, 0, len(schedules))
	for _, sched := range schedules {
		rows = append(rows, map[string]string{
			"id":      strconv.FormatInt(sched.ID, 10),
			"date":    sched.Date.String(),
			"start":   sched.Time.Start.String(),
			"end":     sched.Time.End.String(),
			"class":   names.class(ctx, sched.ClassID),
			"teacher": names.teacher(ctx, sched.TeacherID),
			"room":    names.room(ctx, sched.RoomID),
			"status":  string(sched.Status),
		})
	}
	return export.Dataset{Title: exportTitle(filter), Columns: scheduleColumns, Rows: rows}
}

func exportTitle(filter models.ScheduleFilter) string {
	title := "Class Schedule"
	switch {
	case !filter.From.IsZero() && !filter.To.IsZero():
		title += fmt.Sprintf(" %s to %s", filter.From, filter.To)
	case !filter.From.IsZero():
		title += fmt.Sprintf(" from %s", filter.From)
	case !filter.To.IsZero():
		title += fmt.Sprintf(" until %s", filter.To)
	}
	return title
}

// nameResolver memoises roster names for one export; unresolvable ids render as "#id".
type nameResolver struct {
	dirs     Directories
	teachers map[int64]string
	rooms    map[int64]string
	classes  map[int64]string
}

func newNameResolver(dirs Directories) *nameResolver {
	return &nameResolver{
		dirs:     dirs,
		teachers: map[int64]string{},
		rooms:    map[int64]string{},
		classes:  map[int64]string{},
	}
}

func (r *nameResolver) teacher(ctx context.Context, id int64) string {
	return resolveName(r.teachers, id, func() (string, bool) {
		if r.dirs.Teachers == nil {
			return "", false
		}
		t, err := r.dirs.Teachers.FindByID(ctx, id)
		if err != nil || t == nil {
			return "", false
		}
		return t.FullName, true
	})
}

func (r *nameResolver) room(ctx context.Context, id int64) string {
	return resolveName(r.rooms, id, func() (string, bool) {
		if r.dirs.Rooms == nil {
			return "", false
		}
		room, err := r.dirs.Rooms.FindByID(ctx, id)
		if err != nil || room == nil {
			return "", false
		}
		return room.Name, true
	})
}

func (r *nameResolver) class(ctx context.Context, id int64) string {
	return resolveName(r.classes, id, func() (string, bool) {
		if r.dirs.Classes == nil {
			return "", false
		}
		class, err := r.dirs.Classes.FindByID(ctx, id)
		if err != nil || class == nil {
			return "", false
		}
		return class.Name, true
	})
}

func resolveName(memo map[int64]string, id int64, lookup func() (string, bool)) string {
	if name, ok := memo[id]; ok {
		return name
	}
	name, ok := lookup()
	if !ok || name == "" {
		name = "#" + strconv.FormatInt(id, 10)
	}
	memo[id] = name
	return name
}
