// Package repository holds the MySQL data access layer.  The sentinel
// errors below let handlers and the reservation manager tell failure
// scenarios apart without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the addressed shareable or reservation
// does not exist.  Handlers translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write collides with an existing unique
// value, such as a duplicate shareable uuid.
var ErrConflict = errors.New("conflict")

// ErrOverlap is returned by ReservationRepo.Reserve when the requested
// window intersects an existing reservation on the same shareable.
var ErrOverlap = errors.New("overlapping reservation")

// isDuplicate reports whether err is a MySQL duplicate-key error (1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
