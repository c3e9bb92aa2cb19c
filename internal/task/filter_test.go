package task

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTasks() []Task {
	return []Task{
		{ID: "1", Title: "Pay rent", Status: StatusTodo, Priority: PriorityHigh},
		{ID: "2", Title: "Read book", Description: "Chapter four", Status: StatusDone, Priority: PriorityLow},
		{ID: "3", Title: "Deploy", Status: StatusInProgress, Priority: PriorityUrgent, Tags: []string{"urgent-fix", "ops"}},
		{ID: "4", Title: "Call plumber", Description: "kitchen sink", Status: StatusTodo, Priority: PriorityMedium, Tags: []string{"home"}},
	}
}

func TestApplyStatusFilter(t *testing.T) {
	tasks := []Task{
		{ID: "a", Title: "a", Status: StatusTodo, Priority: PriorityHigh},
		{ID: "b", Title: "b", Status: StatusDone, Priority: PriorityLow},
	}

	got := Apply(tasks, Filters{Status: StatusTodo, Priority: PriorityAll})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	assert.Equal(t, Counts{StatusTodo: 1, StatusInProgress: 0, StatusDone: 1}, CountByStatus(tasks))
}

func TestApplySearchMatchesTags(t *testing.T) {
	got := Apply(sampleTasks(), Filters{Search: "urg"})
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].ID)
}

func TestApplySearchIsCaseInsensitive(t *testing.T) {
	got := Apply(sampleTasks(), Filters{Search: "  KITCHEN "})
	require.Len(t, got, 1)
	assert.Equal(t, "4", got[0].ID)
}

func TestApplyDefaultFiltersKeepsEverything(t *testing.T) {
	tasks := sampleTasks()
	assert.Equal(t, tasks, Apply(tasks, DefaultFilters()))
	assert.Equal(t, tasks, Apply(tasks, Filters{}))
	assert.NotNil(t, Apply(nil, DefaultFilters()))
}

func TestApplyIsConjunctiveSubset(t *testing.T) {
	tasks := sampleTasks()
	statuses := append(Statuses(), StatusAll)
	priorities := append(Priorities(), PriorityAll)
	for _, s := range statuses {
		for _, p := range priorities {
			for _, q := range []string{"", "o", "home", "zzz"} {
				f := Filters{Status: s, Priority: p, Search: q}
				t.Run(fmt.Sprintf("%s/%s/%q", s, p, q), func(t *testing.T) {
					got := Apply(tasks, f)
					for _, tk := range got {
						assert.Contains(t, tasks, tk)
						assert.True(t, s == StatusAll || tk.Status == s)
						assert.True(t, p == PriorityAll || tk.Priority == p)
					}
					want := 0
					for _, tk := range tasks {
						if Matches(tk, f) {
							want++
						}
					}
					assert.Len(t, got, want)
				})
			}
		}
	}
}

func TestCountByStatusSumsToLength(t *testing.T) {
	for n := 0; n <= len(sampleTasks()); n++ {
		tasks := sampleTasks()[:n]
		c := CountByStatus(tasks)
		assert.Len(t, c, 3)
		assert.Equal(t, len(tasks), c.Total())
	}
}

func TestFiltersValidate(t *testing.T) {
	assert.NoError(t, Filters{}.Validate())
	assert.NoError(t, Filters{Status: StatusDone, Priority: PriorityLow}.Validate())
	assert.Error(t, Filters{Status: "later"}.Validate())
	assert.Error(t, Filters{Priority: "none"}.Validate())

	assert.True(t, Filters{Search: "  "}.IsDefault())
	assert.False(t, Filters{Status: StatusTodo}.IsDefault())
}
