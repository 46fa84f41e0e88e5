package paths

import "path"

// A hunt schedules the same collection across many clients and
// aggregates what comes back.
type HuntPathManager struct {
	path    string
	hunt_id string
}

func NewHuntPathManager(hunt_id string) *HuntPathManager {
	return &HuntPathManager{
		path:    path.Join(HUNTS_ROOT, hunt_id),
		hunt_id: hunt_id,
	}
}

func (self HuntPathManager) Path() string {
	return self.path
}

// Results collected from every client in the hunt.
func (self HuntPathManager) Results() *HuntPathManager {
	self.path = path.Join(self.path, "results")
	return &self
}

// Errors reported by clients that failed the collection.
func (self HuntPathManager) Errors() *HuntPathManager {
	self.path = path.Join(self.path, "errors")
	return &self
}
