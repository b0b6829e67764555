package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule/pkg/storage"
)

// Entity names recorded in the sequence file. All of them draw from the same counter.
const (
	EntitySchedule = "schedule"
	EntityStudent  = "student"
	EntityTeacher  = "teacher"
	EntityCourse   = "course"
	EntityRoom     = "room"
	EntityClass    = "class"
)

type sequenceFile struct {
	NextID int64            `json:"next_id"`
	Issued map[string]int64 `json:"issued,omitempty"`
}

// FileSequence is the application-wide id counter shared by every entity type.
// Each increment is persisted before the id is handed out, so an id is never reissued.
type FileSequence struct {
	mu       sync.Mutex
	storage  *storage.LocalStorage
	filename string
	logger   *zap.Logger
	state    sequenceFile
}

// NewFileSequence loads the counter from filename. A missing file starts at 1; an unreadable
// one is quarantined and restarts at 1, relying on EnsureAbove to skip ids already in use.
func NewFileSequence(store *storage.LocalStorage, filename string, logger *zap.Logger) (*FileSequence, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if filename == "" {
		filename = "sequence.json"
	}
	seq := &FileSequence{
		storage:  store,
		filename: filename,
		logger:   logger,
		state:    sequenceFile{NextID: 1, Issued: map[string]int64{}},
	}

	raw, err := store.Read(filename)
	switch {
	case err == nil:
		var decoded sequenceFile
		if decodeErr := json.Unmarshal(raw, &decoded); decodeErr != nil || decoded.NextID < 1 {
			moved, _ := store.Quarantine(filename)
			logger.Warn("id sequence unreadable, restarting counter",
				zap.String("file", filename), zap.String("quarantined", moved), zap.Error(decodeErr))
			break
		}
		if decoded.Issued == nil {
			decoded.Issued = map[string]int64{}
		}
		seq.state = decoded
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read id sequence: %w", err)
	}
	return seq, nil
}

// Next reserves and returns the next id on behalf of entity.
func (s *FileSequence) Next(ctx context.Context, entity string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyState()
	id := next.NextID
	next.NextID++
	next.Issued[entity]++
	if err := s.persist(next); err != nil {
		return 0, err
	}
	s.state = next
	return id, nil
}

// EnsureAbove advances the counter past id when it lags behind, e.g. after the sequence
// file was lost while the schedule record survived.
func (s *FileSequence) EnsureAbove(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.NextID > id {
		return nil
	}
	next := s.copyState()
	next.NextID = id + 1
	if err := s.persist(next); err != nil {
		return err
	}
	s.logger.Info("id sequence advanced past existing records", zap.Int64("next_id", next.NextID))
	s.state = next
	return nil
}

// Peek returns the id the next call to Next will hand out.
func (s *FileSequence) Peek() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.NextID
}

// Issued returns how many ids entity has drawn from the counter.
func (s *FileSequence) Issued(entity string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Issued[entity]
}

func (s *FileSequence) copyState() sequenceFile {
	issued := make(map[string]int64, len(s.state.Issued)+1)
	for k, v := range s.state.Issued {
		issued[k] = v
	}
	return sequenceFile{NextID: s.state.NextID, Issued: issued}
}

func (s *FileSequence) persist(state sequenceFile) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode id sequence: %w", err)
	}
	if err := s.storage.WriteAtomic(s.filename, payload); err != nil {
		return fmt.Errorf("write id sequence: %w", err)
	}
	return nil
}
