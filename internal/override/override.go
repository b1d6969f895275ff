package override

import (
	"sort"
	"strconv"
	"strings"

	"occurcal/internal/datekey"
	appLog "occurcal/internal/log"
	"occurcal/internal/model"
)

// Status of a single occurrence.
type Status string

const (
	StatusNormal    Status = "normal"
	StatusCancelled Status = "cancelled"
)

// ParseStatus maps stored values ("cancelled", "CANCELED", ...) to a Status.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusNormal
	}
}

// Field names accepted in a Patch. Everything else describes the series and
// cannot be changed for one occurrence.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStartTime   = "start_time"
	FieldEndTime     = "end_time"
	FieldDate        = "date"
	FieldVenueName   = "venue_name"
	FieldAddress     = "address"
	FieldCapacity    = "capacity"
	FieldSignupMode  = "signup_mode"
	FieldSlotCount   = "slot_count"
	FieldHostNotes   = "host_notes"
	FieldCoverImage  = "cover_image"
	FieldPublished   = "published"
)

var allowedFields = map[string]bool{
	FieldTitle:       true,
	FieldDescription: true,
	FieldStartTime:   true,
	FieldEndTime:     true,
	FieldDate:        true,
	FieldVenueName:   true,
	FieldAddress:     true,
	FieldCapacity:    true,
	FieldSignupMode:  true,
	FieldSlotCount:   true,
	FieldHostNotes:   true,
	FieldCoverImage:  true,
	FieldPublished:   true,
}

// Allowed reports whether a patch may set field.
func Allowed(field string) bool {
	return allowedFields[field]
}

// Patch is a per-occurrence field patch.
type Patch map[string]any

// Override is a stored per-occurrence exception, keyed by (EventID, DateKey).
// DateKey is the occurrence identity and never changes, even when the patch
// moves the occurrence to another day.
type Override struct {
	EventID string `json:"event_id" yaml:"event_id"`
	DateKey string `json:"date" yaml:"date"`
	Status  Status `json:"status" yaml:"status"`
	Patch   Patch  `json:"patch,omitempty" yaml:"patch,omitempty"`
}

// Cancelled reports whether the occurrence is cancelled.
func (o Override) Cancelled() bool {
	return o.Status == StatusCancelled
}

// Sanitize returns a copy of p holding only allow-listed keys.
func Sanitize(p Patch) Patch {
	if len(p) == 0 {
		return nil
	}
	out := make(Patch, len(p))
	var dropped []string
	for k, v := range p {
		if !allowedFields[k] {
			dropped = append(dropped, k)
			continue
		}
		out[k] = v
	}
	if len(dropped) > 0 {
		sort.Strings(dropped)
		appLog.Debug("override: dropped non-occurrence fields", "fields", strings.Join(dropped, ","))
	}
	return out
}

// RescheduleDate returns the date the occurrence is displayed on when its
// patch moves it away from its identity date.
func RescheduleDate(o Override) (string, bool) {
	raw, ok := o.Patch[FieldDate]
	if !ok {
		return "", false
	}
	date, ok := raw.(string)
	if !ok {
		return "", false
	}
	date = strings.TrimSpace(date)
	if !datekey.Valid(date) || date == o.DateKey {
		return "", false
	}
	return date, true
}

// Apply merges o onto a copy of base. Keys outside the allow-list and values
// of the wrong type are ignored; base is never modified.
func Apply(base model.Event, o Override) model.Event {
	ev := base.Clone()
	for k, v := range Sanitize(o.Patch) {
		switch k {
		case FieldTitle:
			setString(&ev.Title, v)
		case FieldDescription:
			setString(&ev.Description, v)
		case FieldStartTime:
			setString(&ev.StartTime, v)
		case FieldEndTime:
			setString(&ev.EndTime, v)
		case FieldVenueName:
			setString(&ev.VenueName, v)
		case FieldAddress:
			setString(&ev.Address, v)
		case FieldSignupMode:
			setString(&ev.SignupMode, v)
		case FieldHostNotes:
			setString(&ev.HostNotes, v)
		case FieldCoverImage:
			setString(&ev.CoverImage, v)
		case FieldCapacity:
			setInt(&ev.Capacity, v)
		case FieldSlotCount:
			setInt(&ev.SlotCount, v)
		case FieldPublished:
			setBool(&ev.Published, v)
		}
	}
	return ev
}

func setString(dst *string, v any) {
	if s, ok := v.(string); ok {
		*dst = s
	}
}

func setInt(dst *int, v any) {
	switch n := v.(type) {
	case int:
		*dst = n
	case int64:
		*dst = int(n)
	case float64:
		if n == float64(int(n)) {
			*dst = int(n)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			*dst = i
		}
	}
}

func setBool(dst *bool, v any) {
	switch b := v.(type) {
	case bool:
		*dst = b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			*dst = parsed
		}
	}
}
