package model

import "time"

// Reservation is a user's claim on a shareable for a closed time window
// [StartsAt, EndsAt].  Two reservations that touch at a single instant
// overlap.
//
// Fields:
//  ID          – primary key identifier.
//  ShareableID – owning shareable.
//  UserID      – user who made the reservation.
//  StartsAt    – first instant of the window.
//  EndsAt      – last instant of the window.
//  Title       – defaults to "Reserved by <account name>".
//  Description – optional free text, empty when not supplied.
//  CreatedAt   – creation timestamp.
type Reservation struct {
    ID          uint64    `json:"id"`          // reservations.id
    ShareableID uint64    `json:"-"`           // reservations.shareable_id
    UserID      uint64    `json:"user_id"`     // reservations.user_id
    StartsAt    time.Time `json:"starts_at"`   // reservations.starts_at
    EndsAt      time.Time `json:"ends_at"`     // reservations.ends_at
    Title       string    `json:"title"`       // reservations.title
    Description string    `json:"description"` // reservations.description
    CreatedAt   time.Time `json:"created_at"`  // reservations.created_at
}

// WindowPrecision is the resolution of stored reservation windows
// (DATETIME(3)).  Windows must be truncated to it before any comparison.
const WindowPrecision = time.Millisecond

// Overlaps reports whether the reservation shares at least one instant with
// [from, to].  This covers a window that starts inside, ends inside, or fully
// contains the reservation.
func (r Reservation) Overlaps(from, to time.Time) bool {
    return !r.StartsAt.After(to) && !r.EndsAt.Before(from)
}

// DefaultTitle is used when a reservation request carries no title.
func DefaultTitle(accountName string) string {
    return "Reserved by " + accountName
}
