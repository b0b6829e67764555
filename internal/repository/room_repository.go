package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-schedule/internal/models"
)

// RoomRepository serves room lookups.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository creates a new room repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// FindByID fetches a room by ID.
func (r *RoomRepository) FindByID(ctx context.Context, id int64) (*models.Room, error) {
	const query = `SELECT id, name, capacity FROM rooms WHERE id = $1`
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// Exists reports whether the room exists.
func (r *RoomRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT 1 FROM rooms WHERE id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check room %d: %w", id, err)
	}
	return true, nil
}
