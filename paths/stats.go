package paths

import (
	"path"
	"time"
)

// Server metrics are appended to a collection per component per day,
// so old buckets can be dropped wholesale with a collection delete.
type StatsPathManager struct {
	component string
}

func NewStatsPathManager(component string) *StatsPathManager {
	return &StatsPathManager{component: component}
}

func (self StatsPathManager) Metrics(t time.Time) string {
	return path.Join(STATS_ROOT, self.component,
		t.UTC().Format("2006-01-02"))
}
