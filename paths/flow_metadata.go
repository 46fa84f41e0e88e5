package paths

import "path"

// A flow is one collection run on one client. Each flow owns a few
// collections, all grouped under the client.
type FlowPathManager struct {
	path      string
	client_id string
	flow_id   string
}

func NewFlowPathManager(client_id, flow_id string) *FlowPathManager {
	return &FlowPathManager{
		path: path.Join(CLIENTS_ROOT, client_id,
			"collections", flow_id),
		client_id: client_id,
		flow_id:   flow_id,
	}
}

func (self FlowPathManager) Path() string {
	return self.path
}

// The flow's primary result records.
func (self FlowPathManager) Results() *FlowPathManager {
	self.path = path.Join(self.path, "results")
	return &self
}

// Execution log messages sent by the client.
func (self FlowPathManager) Logs() *FlowPathManager {
	self.path = path.Join(self.path, "logs")
	return &self
}

// Metadata about files uploaded by the flow.
func (self FlowPathManager) UploadMetadata() *FlowPathManager {
	self.path = path.Join(self.path, "uploads")
	return &self
}
