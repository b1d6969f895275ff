package override

// Key identifies one occurrence.
type Key struct {
	EventID string
	DateKey string
}

// Index is a read-only lookup of overrides by occurrence identity.
type Index struct {
	byKey map[Key]Override
}

// NewIndex builds an Index. Later entries for the same key replace earlier
// ones.
func NewIndex(list []Override) Index {
	idx := Index{byKey: make(map[Key]Override, len(list))}
	for _, o := range list {
		idx.byKey[Key{EventID: o.EventID, DateKey: o.DateKey}] = o
	}
	return idx
}

// Lookup returns the override stored for (eventID, dateKey).
func (i Index) Lookup(eventID, dateKey string) (Override, bool) {
	o, ok := i.byKey[Key{EventID: eventID, DateKey: dateKey}]
	return o, ok
}

// Len returns the number of indexed overrides.
func (i Index) Len() int {
	return len(i.byKey)
}
