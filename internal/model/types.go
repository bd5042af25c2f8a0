package model

import (
	"bytes"
	"time"
)

// ListItem is one entry of a todo list. Only Finished and FinishedAt may change after
// the item is added; a zero FinishedAt means "not finished yet".
type ListItem struct {
	Description string    `json:"description"`
	AddedAt     time.Time `json:"addedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Finished    bool      `json:"finished"`
}

// Reminder is a durable, named callback scheduled for one entity.
// A zero Period makes the reminder one-shot.
type Reminder struct {
	EntityKey string        `json:"entityKey"`
	Name      string        `json:"name"`
	DueTime   time.Duration `json:"dueTime"`
	Period    time.Duration `json:"period"`
	Payload   []byte        `json:"payload,omitempty"`

	// Scheduler bookkeeping.
	NextFireAt time.Time `json:"nextFireAt"`
	Attempts   int       `json:"attempts"`
	LeaseOwner string    `json:"leaseOwner,omitempty"`
	LeaseUntil time.Time `json:"leaseUntil,omitempty"`
}

// OneShot reports whether the reminder is dropped after its first successful firing.
func (r *Reminder) OneShot() bool { return r.Period <= 0 }

// SameSchedule reports whether o carries the same due time, period and payload as r.
func (r *Reminder) SameSchedule(o *Reminder) bool {
	return r.DueTime == o.DueTime && r.Period == o.Period && bytes.Equal(r.Payload, o.Payload)
}
