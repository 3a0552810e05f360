package model

import "time"

// DateLayout is the wire and storage format of Event.Date.
const DateLayout = "2006-01-02"

// Event is a scheduled occasion guests can be assigned to.
//
// Date is kept as the YYYY-MM-DD string the client sent: it is used as a
// sort key by the stores and never needs time zone handling.
type Event struct {
	ID        string    `json:"eventId"`
	Title     string    `json:"title"`
	Date      string    `json:"date"`
	Location  string    `json:"location,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventUpdate carries a partial update. Nil fields are left unchanged.
type EventUpdate struct {
	Title    *string
	Date     *string
	Location *string
}

// Empty reports whether the update would change nothing.
func (u EventUpdate) Empty() bool {
	return u.Title == nil && u.Date == nil && u.Location == nil
}

// Apply copies the non-nil fields of u onto e.
func (u EventUpdate) Apply(e *Event) {
	if u.Title != nil {
		e.Title = *u.Title
	}
	if u.Date != nil {
		e.Date = *u.Date
	}
	if u.Location != nil {
		e.Location = *u.Location
	}
}

// AssignmentStatus is the state of a user↔event relationship.
type AssignmentStatus string

const AssignmentConfirmed AssignmentStatus = "CONFIRMED"

// Assignment relates a User to an Event. (UserID, EventID) is unique.
type Assignment struct {
	UserID     string           `json:"userId"`
	EventID    string           `json:"eventId"`
	Status     AssignmentStatus `json:"status"`
	AssignedBy string           `json:"assignedBy"`
	AssignedAt time.Time        `json:"assignedAt"`
}
