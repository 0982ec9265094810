package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/shareables/internal/model"
)

// ShareableRepo provides CRUD operations for shareables.  Reservations are
// read through ReservationRepo and attached by GetByUUID.
type ShareableRepo struct {
	db           *sql.DB
	reservations *ReservationRepo
}

// NewShareableRepo returns a ShareableRepo bound to the given database.
func NewShareableRepo(db *sql.DB) *ShareableRepo {
	return &ShareableRepo{db: db, reservations: NewReservationRepo(db)}
}

const shareableColumns = "id, uuid, name, description, created_by, created_at, updated_at"

// Create inserts a shareable.  A uuid is generated when s.UUID is empty.
// ID and timestamps are filled on success.
func (r *ShareableRepo) Create(ctx context.Context, s *model.Shareable) error {
	if s.UUID == "" {
		s.UUID = uuid.NewString()
	} else if _, err := uuid.Parse(s.UUID); err != nil {
		return err
	}
	s.UUID = strings.ToLower(s.UUID)
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO shareables (uuid, name, description, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.UUID, s.Name, s.Description, s.CreatedBy, now, now)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.CreatedAt, s.UpdatedAt = now, now
	if s.Reservations == nil {
		s.Reservations = []model.Reservation{}
	}
	return nil
}

// GetByUUID loads a shareable together with its reservations ordered by
// start time.  ErrNotFound is returned for unknown uuids.
func (r *ShareableRepo) GetByUUID(ctx context.Context, id string) (model.Shareable, error) {
	var s model.Shareable
	err := r.db.QueryRowContext(ctx,
		`SELECT `+shareableColumns+` FROM shareables WHERE uuid = ? LIMIT 1`, strings.ToLower(id)).
		Scan(&s.ID, &s.UUID, &s.Name, &s.Description, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Reservations, err = r.reservations.ListByShareable(ctx, s.ID)
	return s, err
}

// List returns all shareables ordered by name, without reservations.
func (r *ShareableRepo) List(ctx context.Context) ([]model.Shareable, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+shareableColumns+` FROM shareables ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Shareable{}
	for rows.Next() {
		var s model.Shareable
		if err := rows.Scan(&s.ID, &s.UUID, &s.Name, &s.Description, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a shareable; its reservations go with it (ON DELETE CASCADE).
func (r *ShareableRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shareables WHERE uuid = ?`, strings.ToLower(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
