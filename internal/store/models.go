package store

import (
	"time"

	"rostrum/api/internal/resolution"
	"rostrum/api/internal/timer"
)

// Committee is the shared per-committee record: the editing lock flag and the
// countdown timer triple. Created lazily on first access, never deleted.
type Committee struct {
	IsEditingLocked bool        `json:"isEditingLocked"`
	Timer           timer.Timer `json:"timer"`
}

// Bloc is a sub-group's shared record. The password is a plaintext shared
// secret compared verbatim on join; membership is append-only.
type Bloc struct {
	Password   string                `json:"password"`
	Members    []string              `json:"members"`
	Resolution resolution.Resolution `json:"resolution"`
}

// Comment is one entry in a bloc's chair comment log. Timestamps are
// server-assigned so ordering does not depend on client clocks.
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Chair     string    `json:"chair"`
	Timestamp time.Time `json:"timestamp"`
}

// BlocSummary is the listing shape shown on the login and chair surfaces.
type BlocSummary struct {
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
}
