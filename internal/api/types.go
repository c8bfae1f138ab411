package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueEntry is a queued or in-flight file.
type QueueEntry struct {
	Path       string `json:"path"`
	EnqueuedAt string `json:"enqueuedAt,omitempty"`
	StartedAt  string `json:"startedAt,omitempty"`
}

// PipelineStatus summarizes the processing queue and the file in flight.
type PipelineStatus struct {
	Running    bool         `json:"running"`
	Stage      string       `json:"stage"`
	QueueDepth int          `json:"queueDepth"`
	Current    *QueueEntry  `json:"current,omitempty"`
	Pending    []QueueEntry `json:"pending"`
	Processed  int64        `json:"processed"`
	Succeeded  int64        `json:"succeeded"`
	Failed     int64        `json:"failed"`
	Ignored    int64        `json:"ignored"`
	LastFile   string       `json:"lastFile,omitempty"`
	LastError  string       `json:"lastError,omitempty"`
}

// HistoryTotals counts journaled outcomes across all runs.
type HistoryTotals struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StartedAt    string         `json:"startedAt,omitempty"`
	WatchDir     string         `json:"watchDir"`
	UploadedDir  string         `json:"uploadedDir"`
	HistoryPath  string         `json:"historyPath"`
	LockFilePath string         `json:"lockFilePath"`
	Pipeline     PipelineStatus `json:"pipeline"`
	Totals       HistoryTotals  `json:"totals"`
}

// HistoryEntry is one journaled outcome.
type HistoryEntry struct {
	ID            string `json:"id"`
	Path          string `json:"path"`
	FinalPath     string `json:"finalPath,omitempty"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	RemoteID      string `json:"remoteId,omitempty"`
	RemoteURL     string `json:"remoteUrl,omitempty"`
	Detail        string `json:"detail,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	StartedAt     string `json:"startedAt,omitempty"`
	FinishedAt    string `json:"finishedAt,omitempty"`
}

// HistoryResponse wraps journal entries.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}
