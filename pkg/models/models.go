package models

// Detection is one detected object in API responses. BBox is
// [x1, y1, x2, y2] in source-image pixels.
type Detection struct {
	BBox       [4]float32 `json:"bbox"`
	Class      string     `json:"class"`
	ClassID    int        `json:"class_id"`
	Confidence float32    `json:"confidence"`
}

// DetectionResponse is the JSON body of detection endpoints.
type DetectionResponse struct {
	Detections []Detection `json:"detections"`
	Count      int         `json:"count"`
	Model      string      `json:"model"`
	Degraded   bool        `json:"degraded,omitempty"`
}

// DeviceInfo describes the compute device in API responses.
type DeviceInfo struct {
	Kind            string `json:"kind"`
	Name            string `json:"name"`
	TotalMemory     uint64 `json:"total_memory"`
	AllocatedMemory uint64 `json:"allocated_memory"`
}

// ModelStatus describes one capability entry in the models info report.
type ModelStatus struct {
	Kind     string `json:"kind"`
	Variant  string `json:"variant,omitempty"`
	Loaded   bool   `json:"loaded"`
	Degraded bool   `json:"degraded"`
	Error    string `json:"error,omitempty"`
}

// ModelsInfoResponse is the JSON body of the models info endpoint.
type ModelsInfoResponse struct {
	Device DeviceInfo    `json:"device"`
	Models []ModelStatus `json:"models"`
}

// ErrorResponse is the JSON body of failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Time    string `json:"time"`
}
