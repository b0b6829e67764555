package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule/internal/models"
	"github.com/noah-isme/sma-schedule/pkg/storage"
)

const scheduleFileVersion = 1

// scheduleRecord is the on-disk shape of one schedule.
type scheduleRecord struct {
	ID        int64  `json:"id"`
	ClassID   int64  `json:"class_id"`
	TeacherID int64  `json:"teacher_id"`
	RoomID    int64  `json:"room_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

type scheduleFile struct {
	Version   int              `json:"version"`
	SavedAt   time.Time        `json:"saved_at"`
	Schedules []scheduleRecord `json:"schedules"`
}

// ErrCorruptRecord marks a schedule file that exists but cannot be decoded.
type ErrCorruptRecord struct {
	File        string
	Quarantined string
	Err         error
}

func (e *ErrCorruptRecord) Error() string {
	if e.Quarantined != "" {
		return fmt.Sprintf("corrupt schedule record %s (moved to %s): %v", e.File, e.Quarantined, e.Err)
	}
	return fmt.Sprintf("corrupt schedule record %s: %v", e.File, e.Err)
}

func (e *ErrCorruptRecord) Unwrap() error { return e.Err }

// ScheduleFileRepository keeps the full schedule set in a single JSON record that is
// rewritten on every save.
type ScheduleFileRepository struct {
	storage  *storage.LocalStorage
	filename string
	logger   *zap.Logger
}

// NewScheduleFileRepository creates a schedule repository writing filename under storage.
func NewScheduleFileRepository(store *storage.LocalStorage, filename string, logger *zap.Logger) *ScheduleFileRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if filename == "" {
		filename = "schedules.json"
	}
	return &ScheduleFileRepository{storage: store, filename: filename, logger: logger}
}

// Load reads every stored schedule. A missing file yields an empty set; an undecodable
// file is moved aside and reported as *ErrCorruptRecord.
func (r *ScheduleFileRepository) Load(ctx context.Context) ([]models.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := r.storage.Read(r.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Schedule{}, nil
		}
		return nil, fmt.Errorf("read schedule record: %w", err)
	}

	schedules, err := decodeSchedules(raw)
	if err != nil {
		moved, qErr := r.storage.Quarantine(r.filename)
		if qErr != nil {
			r.logger.Warn("failed to quarantine corrupt schedule record", zap.String("file", r.filename), zap.Error(qErr))
		}
		return nil, &ErrCorruptRecord{File: r.filename, Quarantined: moved, Err: err}
	}
	return schedules, nil
}

// Save replaces the stored record with schedules, ordered by id.
func (r *ScheduleFileRepository) Save(ctx context.Context, schedules []models.Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := scheduleFile{
		Version:   scheduleFileVersion,
		SavedAt:   time.Now().UTC(),
		Schedules: make([]scheduleRecord, 0, len(schedules)),
	}
	for _, s := range schedules {
		doc.Schedules = append(doc.Schedules, toRecord(s))
	}
	sort.Slice(doc.Schedules, func(i, j int) bool { return doc.Schedules[i].ID < doc.Schedules[j].ID })

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schedule record: %w", err)
	}
	if err := r.storage.WriteAtomic(r.filename, payload); err != nil {
		return fmt.Errorf("write schedule record: %w", err)
	}
	return nil
}

func decodeSchedules(raw []byte) ([]models.Schedule, error) {
	var doc scheduleFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if doc.Version != scheduleFileVersion {
		return nil, fmt.Errorf("unsupported version %d", doc.Version)
	}

	seen := make(map[int64]struct{}, len(doc.Schedules))
	schedules := make([]models.Schedule, 0, len(doc.Schedules))
	for i, rec := range doc.Schedules {
		s, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("record %d: duplicate id %d", i, s.ID)
		}
		seen[s.ID] = struct{}{}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

func toRecord(s models.Schedule) scheduleRecord {
	return scheduleRecord{
		ID:        s.ID,
		ClassID:   s.ClassID,
		TeacherID: s.TeacherID,
		RoomID:    s.RoomID,
		Date:      s.Date.String(),
		StartTime: s.Time.Start.String(),
		EndTime:   s.Time.End.String(),
		Status:    string(s.Status),
	}
}

func fromRecord(rec scheduleRecord) (models.Schedule, error) {
	if rec.ID < 1 {
		return models.Schedule{}, fmt.Errorf("invalid id %d", rec.ID)
	}
	date, err := models.ParseDate(rec.Date)
	if err != nil {
		return models.Schedule{}, err
	}
	timeRange, err := models.ParseTimeRange(rec.StartTime, rec.EndTime)
	if err != nil {
		return models.Schedule{}, err
	}
	status, err := models.ParseScheduleStatus(rec.Status)
	if err != nil {
		return models.Schedule{}, err
	}
	return models.Schedule{
		ID:        rec.ID,
		ClassID:   rec.ClassID,
		TeacherID: rec.TeacherID,
		RoomID:    rec.RoomID,
		Date:      date,
		Time:      timeRange,
		Status:    status,
	}, nil
}
