package detector

// inferenceRequest is the body posted to the inference service.
type inferenceRequest struct {
	Image  string `json:"image"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// InferenceResponse models the top-level structure of the inference service's response.
type InferenceResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    struct {
		Detections []InferenceObject `json:"detections"`
	} `json:"data"`
}

// InferenceObject is a single labeled box. Box is [x1, y1, x2, y2] in pixels.
type InferenceObject struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}
