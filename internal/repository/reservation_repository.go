package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/shareables/internal/model"
)

// ReservationRepo stores reservations.  Every reservation belongs to one
// shareable; all timestamps are stored in UTC with millisecond precision.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const reservationColumns = "id, shareable_id, user_id, starts_at, ends_at, title, description, created_at"

// Reserve appends res to the shareable identified by shareableUUID unless
// its window overlaps an existing reservation.  The shareable row is locked
// for the duration of the check and insert, so two concurrent requests for
// intersecting windows cannot both succeed.  On success res.ID,
// res.ShareableID and res.CreatedAt are set.
//
// Errors: ErrNotFound for an unknown shareable, ErrOverlap when a
// conflicting reservation exists.
func (r *ReservationRepo) Reserve(ctx context.Context, shareableUUID string, res *model.Reservation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var shareableID uint64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM shareables WHERE uuid = ? FOR UPDATE`, strings.ToLower(shareableUUID)).Scan(&shareableID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock shareable: %w", err)
	}

	conflicts, err := findOverlapping(ctx, tx, shareableID, res.StartsAt, res.EndsAt)
	if err != nil {
		return fmt.Errorf("overlap query: %w", err)
	}
	if len(conflicts) > 0 {
		return ErrOverlap
	}

	now := time.Now().UTC().Truncate(time.Second)
	result, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (shareable_id, user_id, starts_at, ends_at, title, description, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		shareableID, res.UserID, res.StartsAt.UTC(), res.EndsAt.UTC(), res.Title, res.Description, now)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true

	res.ID = uint64(id)
	res.ShareableID = shareableID
	res.CreatedAt = now
	return nil
}

// findOverlapping returns reservations on the shareable whose closed window
// intersects [from, to].
func findOverlapping(ctx context.Context, q queryer, shareableID uint64, from, to time.Time) ([]model.Reservation, error) {
	// existing.start <= new.end AND existing.end >= new.start
	return scanReservations(q.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE shareable_id = ? AND starts_at <= ? AND ends_at >= ? ORDER BY starts_at`,
		shareableID, to.UTC(), from.UTC()))
}

// ListByShareable returns every reservation of a shareable ordered by start.
func (r *ReservationRepo) ListByShareable(ctx context.Context, shareableID uint64) ([]model.Reservation, error) {
	return scanReservations(r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE shareable_id = ? ORDER BY starts_at`, shareableID))
}

// Delete removes reservation id from the shareable.  Only the user who made
// the reservation may remove it unless asAdmin is set.
func (r *ReservationRepo) Delete(ctx context.Context, shareableUUID string, id, userID uint64, asAdmin bool) error {
	var owner uint64
	err := r.db.QueryRowContext(ctx,
		`SELECT r.user_id FROM reservations r JOIN shareables s ON s.id = r.shareable_id WHERE s.uuid = ? AND r.id = ?`,
		strings.ToLower(shareableUUID), id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != userID && !asAdmin {
		return ErrForbidden
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReservations(rows *sql.Rows, err error) ([]model.Reservation, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Reservation{}
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.ShareableID, &res.UserID, &res.StartsAt, &res.EndsAt,
			&res.Title, &res.Description, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
