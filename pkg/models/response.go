package models

// DetectionResponse is the API-facing result of one detection request.
type DetectionResponse struct {
	AnalysisID       string             `json:"analysis_id"`
	IsAIGenerated    bool               `json:"is_ai_generated"`
	Confidence       float64            `json:"confidence"`
	ModelPrediction  *string            `json:"model_prediction,omitempty"`
	Analysis         map[string]float64 `json:"analysis"`
	Explanation      string             `json:"explanation"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
	Consensus        *ConsensusSummary  `json:"consensus,omitempty"`
}

// BatchTextItem is one entry in a batch text request.
type BatchTextItem struct {
	ItemID string `json:"item_id"`
	Text   string `json:"text"`
}

// BatchItemResult pairs one batch item with its outcome.
type BatchItemResult struct {
	ItemID string             `json:"item_id"`
	Result *DetectionResponse `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// BatchResponse summarizes one batch text run.
type BatchResponse struct {
	Results   []BatchItemResult `json:"results"`
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}
