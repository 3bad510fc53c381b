package models

// ProgressRecord is the durable local record of how far a session has
// advanced. ElapsedTimeMillis is accumulated active duration persisted
// explicitly, so wall-clock gaps (app backgrounding, clock skew) do not
// inflate it.
type ProgressRecord struct {
	SessionID         string `json:"session_id"`
	QuestionIndex     int    `json:"question_index"`
	TimestampMillis   int64  `json:"timestamp_millis"`
	ElapsedTimeMillis int64  `json:"elapsed_time_millis"`
}
