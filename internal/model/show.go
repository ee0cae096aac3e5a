package model

import "time"

// Show is the core's view of a scheduled screening as provided by the
// inventory collaborator.  The core only reads seat identifiers and the
// start time, and writes a confirmed marker per seat; pricing and other
// metadata stay with the catalog.
//
// Fields:
//  ID       – primary key identifier.
//  Title    – movie title for display and events.
//  StartsAt – when the screening begins (UTC).
//  Seats    – seat labels that exist for this show.
type Show struct {
    ID       uint64    `json:"show_id"`
    Title    string    `json:"title"`
    StartsAt time.Time `json:"starts_at"`
    Seats    []string  `json:"seats"`
}

// HasSeat reports whether the given label is part of the show's inventory.
func (s *Show) HasSeat(label string) bool {
    for _, l := range s.Seats {
        if l == label {
            return true
        }
    }
    return false
}
