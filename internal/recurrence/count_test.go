package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kalapa/internal/model"
)

func TestStepsForCount(t *testing.T) {
	tests := []struct {
		name       string
		count      int
		exceptions []string
		endDate    int
		want       int
	}{
		{name: "no count", count: 0, want: 0},
		{name: "no exceptions", count: 3, want: 3},
		{name: "exception inside series", count: 3, exceptions: []string{"2026-01-12"}, want: 4},
		{name: "exception after series", count: 3, exceptions: []string{"2026-03-02"}, want: 3},
		{name: "consecutive exceptions", count: 2, exceptions: []string{"2026-01-05", "2026-01-12"}, want: 4},
		{name: "end date stops the walk", count: 5, exceptions: []string{"2026-01-12"}, endDate: 19, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := weeklyMaster()
			m.Recurrence.Count = tt.count
			m.Recurrence.Exceptions = tt.exceptions
			if tt.endDate > 0 {
				m.Recurrence.EndDate = date(2026, 1, tt.endDate)
			}
			assert.Equal(t, tt.want, StepsForCount(m))
		})
	}
}

func TestCountWithinSteps_InvertsStepsForCount(t *testing.T) {
	m := weeklyMaster()
	m.Recurrence.Count = 4
	m.Recurrence.Exceptions = []string{"2026-01-12", "2026-01-26"}

	steps := StepsForCount(m)
	assert.Equal(t, 6, steps)
	assert.Equal(t, 4, CountWithinSteps(m, steps))

	assert.Equal(t, 0, CountWithinSteps(m, 0))
	assert.Equal(t, 0, CountWithinSteps(model.Event{FromDate: date(2026, 1, 5)}, 3))
}
