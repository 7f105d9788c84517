package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"studiobook/internal/availability"
)

// DefaultTimes is the fixed slot list used when the catalog defines neither times nor a schedule.
var DefaultTimes = []string{"09:00", "11:00", "13:00", "15:00", "17:00", "19:00"}

// RoomConfig is one bookable studio room.
type RoomConfig struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Disabled    bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

type ScheduleConfig struct {
	StartTime           string `yaml:"start_time"`            // "09:00"
	EndTime             string `yaml:"end_time"`              // "21:00"
	SlotDurationMinutes int    `yaml:"slot_duration_minutes"` // 120
	BreakStart          string `yaml:"break_start,omitempty"`
	BreakEnd            string `yaml:"break_end,omitempty"`
}

type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-01-01"
	Name string `yaml:"name"`
}

// Catalog is the root of rooms.yaml: which rooms exist and which slot times they offer.
type Catalog struct {
	Rooms    []RoomConfig    `yaml:"rooms"`
	Times    []string        `yaml:"times,omitempty"`
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
	DaysOff  []int           `yaml:"days_off,omitempty"` // 1=Mon, 7=Sun
	Holidays []HolidayConfig `yaml:"holidays,omitempty"`
}

// DefaultCatalog returns a two-room catalog with the standard slot list.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Rooms: []RoomConfig{
			{ID: "studio-a", Name: "Studio A"},
			{ID: "studio-b", Name: "Studio B"},
		},
		Times: slices.Clone(DefaultTimes),
	}
}

// LoadCatalog loads and validates the rooms catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = "configs/rooms.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms config: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse rooms config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate rooms config: %w", err)
	}
	if err := c.resolveTimes(); err != nil {
		return nil, fmt.Errorf("validate rooms config: %w", err)
	}
	return &c, nil
}

// Validate checks the catalog for errors.
func (c *Catalog) Validate() error {
	if len(c.Rooms) == 0 {
		return fmt.Errorf("no rooms defined")
	}

	ids := make(map[string]bool)
	for i, r := range c.Rooms {
		if r.ID == "" {
			return fmt.Errorf("room[%d]: id is required", i)
		}
		if ids[r.ID] {
			return fmt.Errorf("room[%d]: duplicate id '%s'", i, r.ID)
		}
		ids[r.ID] = true
		if r.Name == "" {
			return fmt.Errorf("room[%d]: name is required", i)
		}
	}

	seen := make(map[string]bool)
	for i, t := range c.Times {
		if !availability.ValidClock(t) {
			return fmt.Errorf("times[%d]: invalid format '%s', expected HH:MM", i, t)
		}
		if seen[t] {
			return fmt.Errorf("times[%d]: duplicate time '%s'", i, t)
		}
		seen[t] = true
	}

	for i, h := range c.Holidays {
		if _, err := time.Parse(availability.DateLayout, h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	for i, d := range c.DaysOff {
		if d < 1 || d > 7 {
			return fmt.Errorf("days_off[%d]: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", i, d)
		}
	}
	return nil
}

// resolveTimes fills Times from the schedule, or from DefaultTimes when neither is set.
func (c *Catalog) resolveTimes() error {
	if len(c.Times) > 0 {
		return nil
	}
	if c.Schedule == nil {
		c.Times = slices.Clone(DefaultTimes)
		return nil
	}

	times, err := availability.GenerateTimes(availability.Schedule{
		StartTime:           c.Schedule.StartTime,
		EndTime:             c.Schedule.EndTime,
		SlotDurationMinutes: c.Schedule.SlotDurationMinutes,
		BreakStart:          c.Schedule.BreakStart,
		BreakEnd:            c.Schedule.BreakEnd,
	})
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if len(times) == 0 {
		return fmt.Errorf("schedule: no slot fits between %s and %s", c.Schedule.StartTime, c.Schedule.EndTime)
	}
	c.Times = times
	return nil
}

// Room returns the room with the given id, or nil.
func (c *Catalog) Room(id string) *RoomConfig {
	for i := range c.Rooms {
		if c.Rooms[i].ID == id {
			return &c.Rooms[i]
		}
	}
	return nil
}

func (c *Catalog) ActiveRooms() []RoomConfig {
	result := make([]RoomConfig, 0, len(c.Rooms))
	for _, r := range c.Rooms {
		if !r.Disabled {
			result = append(result, r)
		}
	}
	return result
}

func (c *Catalog) HasTime(t string) bool {
	return slices.Contains(c.Times, t)
}

// SlotsPerDay is the number of slots after which a day counts as fully booked.
func (c *Catalog) SlotsPerDay() int {
	return len(c.Times)
}

// IsHoliday checks if a date is a holiday.
func (c *Catalog) IsHoliday(date time.Time) (bool, string) {
	dateStr := date.Format(availability.DateLayout)
	for _, h := range c.Holidays {
		if h.Date == dateStr {
			return true, h.Name
		}
	}
	return false, ""
}

// IsDayOff checks if a weekday is a day off.
func (c *Catalog) IsDayOff(weekday time.Weekday) bool {
	// Go counts from Sunday=0, the catalog from Monday=1 to Sunday=7.
	day := int(weekday)
	if day == 0 {
		day = 7
	}
	return slices.Contains(c.DaysOff, day)
}

// ClosedOn reports whether no room can be booked on date, with a human readable reason.
func (c *Catalog) ClosedOn(date time.Time) (bool, string) {
	if ok, name := c.IsHoliday(date); ok {
		if name == "" {
			name = "holiday"
		}
		return true, name
	}
	if c.IsDayOff(date.Weekday()) {
		return true, "day off"
	}
	return false, ""
}

// String returns a summary of the catalog.
func (c *Catalog) String() string {
	return fmt.Sprintf("Catalog: %d rooms (%d active), %d slots per day, %d holidays",
		len(c.Rooms), len(c.ActiveRooms()), len(c.Times), len(c.Holidays))
}
