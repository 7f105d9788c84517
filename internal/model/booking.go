package model

import "time"

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Occupies reports whether a booking in this status claims its slot.
func (s Status) Occupies() bool {
	return s == StatusPending || s == StatusApproved
}

// Booking is a request for one room slot on one date.
type Booking struct {
	ID            string    `json:"id"`
	Room          string    `json:"room"`
	Date          string    `json:"date"` // YYYY-MM-DD
	Time          string    `json:"time"` // HH:MM
	Title         string    `json:"title"`
	StaffName     string    `json:"staffName"`
	StaffID       string    `json:"staffId"`
	Status        Status    `json:"status"`
	ActualViewers *int      `json:"actualViewers"`
	SalesAmount   *float64  `json:"salesAmount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Version       int64     `json:"version"`
}

// Clone returns a copy that shares no pointers with b.
func (b Booking) Clone() Booking {
	if b.ActualViewers != nil {
		v := *b.ActualViewers
		b.ActualViewers = &v
	}
	if b.SalesAmount != nil {
		v := *b.SalesAmount
		b.SalesAmount = &v
	}
	return b
}

// SameSlot reports whether b is for the given room, date and time.
func (b *Booking) SameSlot(room, date, slot string) bool {
	return b.Room == room && b.Date == date && b.Time == slot
}

// Reported reports whether post-session stats were recorded.
func (b *Booking) Reported() bool {
	return b.ActualViewers != nil || b.SalesAmount != nil
}

// Sales returns the recorded sales amount or zero.
func (b *Booking) Sales() float64 {
	if b.SalesAmount == nil {
		return 0
	}
	return *b.SalesAmount
}

// Viewers returns the recorded viewer count or zero.
func (b *Booking) Viewers() int {
	if b.ActualViewers == nil {
		return 0
	}
	return *b.ActualViewers
}

// BookingPatch is a partial update. Nil fields are left untouched.
// Version must equal the stored version for the update to apply.
type BookingPatch struct {
	Status        *Status
	ActualViewers *int
	SalesAmount   *float64
	Version       int64
}

// Apply returns a copy of b with the patch applied and the version bumped.
func (p BookingPatch) Apply(b Booking, now time.Time) Booking {
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.ActualViewers != nil {
		v := *p.ActualViewers
		b.ActualViewers = &v
	}
	if p.SalesAmount != nil {
		v := *p.SalesAmount
		b.SalesAmount = &v
	}
	b.Version++
	b.UpdatedAt = now
	return b
}
