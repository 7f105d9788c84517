// Package availability answers occupancy questions over a snapshot of bookings.
// Every function here is pure: callers pass the collection and get plain data back.
package availability

import (
	"studiobook/internal/model"
)

// SlotTag says whether a slot can still be requested.
type SlotTag string

const (
	SlotFree  SlotTag = "FREE"
	SlotTaken SlotTag = "TAKEN"
)

// SlotState is one entry of a day's slot picker.
type SlotState struct {
	Time    string         `json:"time"`
	Tag     SlotTag        `json:"tag"`
	Booking *model.Booking `json:"booking,omitempty"` // set only when Tag is SlotTaken
}

// Free reports whether the slot is unoccupied.
func (s SlotState) Free() bool {
	return s.Tag == SlotFree
}

// Occupant returns the booking holding (room, date, slot), if any.
// Rejected bookings never occupy a slot.
func Occupant(bookings []model.Booking, room, date, slot string) (*model.Booking, bool) {
	for i := range bookings {
		b := &bookings[i]
		if b.Status.Occupies() && b.SameSlot(room, date, slot) {
			return b, true
		}
	}
	return nil, false
}

// IsSlotAvailable reports whether no pending or approved booking holds (room, date, slot).
func IsSlotAvailable(bookings []model.Booking, room, date, slot string) bool {
	_, taken := Occupant(bookings, room, date, slot)
	return !taken
}

// SlotsForDate tags every slot of allSlots for the given room and date.
// The result has exactly len(allSlots) entries in the same order.
func SlotsForDate(bookings []model.Booking, room, date string, allSlots []string) []SlotState {
	occupied := make(map[string]*model.Booking)
	for i := range bookings {
		b := &bookings[i]
		if b.Room != room || b.Date != date || !b.Status.Occupies() {
			continue
		}
		if _, seen := occupied[b.Time]; !seen {
			occupied[b.Time] = b
		}
	}

	result := make([]SlotState, len(allSlots))
	for i, slot := range allSlots {
		if b, ok := occupied[slot]; ok {
			cp := *b
			result[i] = SlotState{Time: slot, Tag: SlotTaken, Booking: &cp}
			continue
		}
		result[i] = SlotState{Time: slot, Tag: SlotFree}
	}
	return result
}

// FreeTimes returns only the free slot times, preserving order.
func FreeTimes(states []SlotState) []string {
	var free []string
	for _, s := range states {
		if s.Free() {
			free = append(free, s.Time)
		}
	}
	return free
}
