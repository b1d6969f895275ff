package model

// Schedule is the raw scheduling description of an event as stored by the
// persistence layer. Any field may be empty; interpretation happens in
// internal/recurrence and nowhere else.
type Schedule struct {
	// AnchorDate is the date key the series is computed forward from.
	AnchorDate string `yaml:"anchor_date,omitempty" json:"anchor_date,omitempty"`
	// DayOfWeek is a free-form label such as "Tuesday" or "tue".
	DayOfWeek string `yaml:"day_of_week,omitempty" json:"day_of_week,omitempty"`
	// Rule is either an RRULE-like string (FREQ=...) or legacy text
	// ("weekly", "2nd", "1st/3rd", ...).
	Rule string `yaml:"rule,omitempty" json:"rule,omitempty"`
	// EndDate bounds the series (inclusive).
	EndDate string `yaml:"end_date,omitempty" json:"end_date,omitempty"`
	// MaxOccurrences bounds the series by count; 0 means unbounded.
	MaxOccurrences int `yaml:"max_occurrences,omitempty" json:"max_occurrences,omitempty"`
	// CustomDates is an explicit list of occurrence date keys.
	CustomDates []string `yaml:"custom_dates,omitempty" json:"custom_dates,omitempty"`
}

// Event represents a logical event before occurrence expansion.
type Event struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// StartTime / EndTime are civil times of day ("19:00", "7:30 PM").
	StartTime string `yaml:"start_time,omitempty" json:"start_time,omitempty"`
	EndTime   string `yaml:"end_time,omitempty" json:"end_time,omitempty"`

	HostNotes  string `yaml:"host_notes,omitempty" json:"host_notes,omitempty"`
	CoverImage string `yaml:"cover_image,omitempty" json:"cover_image,omitempty"`

	VenueName string `yaml:"venue_name,omitempty" json:"venue_name,omitempty"`
	Address   string `yaml:"address,omitempty" json:"address,omitempty"`

	Capacity   int    `yaml:"capacity,omitempty" json:"capacity,omitempty"`
	SignupMode string `yaml:"signup_mode,omitempty" json:"signup_mode,omitempty"`
	SlotCount  int    `yaml:"slot_count,omitempty" json:"slot_count,omitempty"`
	Published  bool   `yaml:"published" json:"published"`

	Schedule Schedule `yaml:"schedule" json:"schedule"`
}

// Clone returns a copy of e that shares no mutable state with it.
func (e Event) Clone() Event {
	out := e
	if e.Schedule.CustomDates != nil {
		out.Schedule.CustomDates = append([]string(nil), e.Schedule.CustomDates...)
	}
	return out
}
