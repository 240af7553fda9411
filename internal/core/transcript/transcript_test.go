package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult_Duration(t *testing.T) {
	reported := 99.9

	t.Run("last segment end wins", func(t *testing.T) {
		r := &Result{
			DurationSec: &reported,
			Segments: []Segment{
				{Start: 0, End: 2.5},
				{Start: 2.5, End: 7.1},
			},
		}
		assert.Equal(t, 7.1, r.Duration())
	})

	t.Run("falls back to reported duration when no segments", func(t *testing.T) {
		r := &Result{DurationSec: &reported}
		assert.Equal(t, 99.9, r.Duration())
	})

	t.Run("zero when nothing is known", func(t *testing.T) {
		r := &Result{}
		assert.Equal(t, 0.0, r.Duration())
	})
}

func TestResult_SortSegments(t *testing.T) {
	r := &Result{
		Segments: []Segment{
			{Start: 5.0, End: 6.0, Text: "c"},
			{Start: 0.0, End: 2.0, Text: "a"},
			{Start: 2.0, End: 5.5, Text: "b"},
		},
	}

	r.SortSegments()

	assert.Equal(t, "a", r.Segments[0].Text)
	assert.Equal(t, "b", r.Segments[1].Text)
	assert.Equal(t, "c", r.Segments[2].Text)
}
