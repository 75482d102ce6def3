package logging

import "time"

// #region inference-entry
// InferenceEntry is a single row in the inference_log table.
type InferenceEntry struct {
	ID               int64
	RequestID        string
	Method           string // "query" | "do_calculus"
	Target           string
	ThresholdVersion string
	RequestJSON      string
	ResponseJSON     string
	DecodedJSON      string
	Error            string
	CreatedAt        time.Time
}

// #endregion inference-entry
