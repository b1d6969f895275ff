package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"occurcal/internal/model"
)

func TestOrdinalRoundTrip(t *testing.T) {
	sets := [][]int{
		{1},
		{3, 1},
		{LastOrdinal, 2},
		{5, LastOrdinal, 1, 3},
		{2, 4},
	}
	for _, set := range sets {
		text := FormatOrdinals(set)
		assert.Equal(t, CanonicalOrdinals(set), CanonicalOrdinals(ParseOrdinals(text)), text)
	}
	assert.Equal(t, "1st/3rd/last", FormatOrdinals([]int{LastOrdinal, 3, 1}))
}

func TestParseOrdinalsPreservesTextOrder(t *testing.T) {
	assert.Equal(t, []int{3, 1, LastOrdinal}, ParseOrdinals("3rd, 1st and last"))
	assert.Equal(t, []int{2}, ParseOrdinals("2nd / second"))
	assert.Empty(t, ParseOrdinals("sixth"))
}

func TestCanonicalOrdinalsDropsInvalid(t *testing.T) {
	assert.Equal(t, []int{1, 4}, CanonicalOrdinals([]int{4, 0, 7, 1, -3, 4}))
}

func TestOrdinalRoundTripThroughNormalize(t *testing.T) {
	text := FormatOrdinals([]int{LastOrdinal, 1, 3})
	n := Normalize(model.Schedule{DayOfWeek: "Thursday", Rule: text}, testCal)
	assert.Equal(t, []int{1, 3, LastOrdinal}, n.Ordinals)
}
