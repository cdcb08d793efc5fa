package api

// DetectTextRequest is the body of POST /detect/text.
type DetectTextRequest struct {
	Text string `json:"text" validate:"required"`
}

// DetectURLRequest is the body of POST /detect/url.
type DetectURLRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// BatchTextRequest is the body of POST /batch/text.
type BatchTextRequest struct {
	Items []BatchTextRequestItem `json:"items" validate:"required,min=1,dive"`
	// StopOnError aborts the remaining items after the first failure.
	StopOnError bool `json:"stop_on_error"`
}

// BatchTextRequestItem is one entry in a batch request.
type BatchTextRequestItem struct {
	ItemID string `json:"item_id" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

// EstimateRequest is the body of POST /intel/x/collect/estimate.
type EstimateRequest struct {
	WindowDays int `json:"window_days" validate:"required,min=1,max=90"`
	MaxPosts   int `json:"max_posts" validate:"required,min=1"`
	MaxPages   int `json:"max_pages" validate:"omitempty,min=1"`
}

// TriggerRequest is the body of POST /intel/scheduler/trigger.
type TriggerRequest struct {
	Handle string `json:"handle" validate:"required"`
}
