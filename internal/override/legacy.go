package override

// LegacyRow is the stored shape of an override. Older rows carry dedicated
// columns for the display time, the cover image and the host notes; newer
// rows use the generic patch. FromLegacy folds both into one Patch.
type LegacyRow struct {
	EventID     string `json:"event_id" yaml:"event_id"`
	DateKey     string `json:"date" yaml:"date"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty"`
	DisplayTime string `json:"display_time,omitempty" yaml:"display_time,omitempty"`
	CoverImage  string `json:"cover_image,omitempty" yaml:"cover_image,omitempty"`
	HostNotes   string `json:"host_notes,omitempty" yaml:"host_notes,omitempty"`
	Patch       Patch  `json:"patch,omitempty" yaml:"patch,omitempty"`
}

// FromLegacy translates a stored row. The legacy columns are applied first
// and the generic patch is layered on top, so the patch wins on conflicts.
func FromLegacy(row LegacyRow) Override {
	merged := Patch{}
	if row.DisplayTime != "" {
		merged[FieldStartTime] = row.DisplayTime
	}
	if row.CoverImage != "" {
		merged[FieldCoverImage] = row.CoverImage
	}
	if row.HostNotes != "" {
		merged[FieldHostNotes] = row.HostNotes
	}
	for k, v := range Sanitize(row.Patch) {
		merged[k] = v
	}
	if len(merged) == 0 {
		merged = nil
	}
	return Override{
		EventID: row.EventID,
		DateKey: row.DateKey,
		Status:  ParseStatus(row.Status),
		Patch:   merged,
	}
}

// ToRow is the inverse used when persisting; new rows only use the patch.
func ToRow(o Override) LegacyRow {
	return LegacyRow{
		EventID: o.EventID,
		DateKey: o.DateKey,
		Status:  string(o.Status),
		Patch:   Sanitize(o.Patch),
	}
}
