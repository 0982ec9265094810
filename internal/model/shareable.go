package model

import "time"

// Shareable is a bookable resource.  Reservations are owned by the
// shareable and are loaded together with it.
//
// Fields:
//  ID           – primary key identifier.
//  UUID         – public identifier used by clients and events.
//  Name         – display name.
//  Description  – free text.
//  CreatedBy    – user who registered the resource.
//  Reservations – time-bounded claims, ordered by start time.
type Shareable struct {
    ID           uint64        `json:"-"`            // shareables.id
    UUID         string        `json:"uuid"`         // shareables.uuid
    Name         string        `json:"name"`         // shareables.name
    Description  string        `json:"description"`  // shareables.description
    CreatedBy    uint64        `json:"created_by"`   // shareables.created_by
    Reservations []Reservation `json:"reservations"` // reservations.shareable_id = id
    CreatedAt    time.Time     `json:"created_at"`   // shareables.created_at
    UpdatedAt    time.Time     `json:"updated_at"`   // shareables.updated_at
}

// Conflicts returns the reservations whose window overlaps [from, to].
func (s Shareable) Conflicts(from, to time.Time) []Reservation {
    var out []Reservation
    for _, r := range s.Reservations {
        if r.Overlaps(from, to) {
            out = append(out, r)
        }
    }
    return out
}
