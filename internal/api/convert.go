package api

import (
	"time"

	"hopper/internal/history"
	"hopper/internal/ingest"
	"hopper/internal/queue"
)

// FromIngestStatus converts controller status to its API representation.
func FromIngestStatus(st ingest.Status) PipelineStatus {
	dto := PipelineStatus{
		Running:    st.Queue.Running,
		Stage:      st.Stage,
		QueueDepth: st.Queue.Depth,
		Pending:    make([]QueueEntry, 0, len(st.Queue.Pending)),
		Processed:  st.Processed,
		Succeeded:  st.Succeeded,
		Failed:     st.Failed,
		Ignored:    st.Ignored,
		LastFile:   st.LastFile,
		LastError:  st.LastError,
	}
	for _, entry := range st.Queue.Pending {
		dto.Pending = append(dto.Pending, fromQueueEntry(entry, time.Time{}))
	}
	if st.Queue.Current != nil {
		cur := fromQueueEntry(*st.Queue.Current, st.Queue.StartedAt)
		dto.Current = &cur
	}
	return dto
}

func fromQueueEntry(entry queue.Entry, started time.Time) QueueEntry {
	return QueueEntry{
		Path:       entry.Path,
		EnqueuedAt: formatTime(entry.EnqueuedAt),
		StartedAt:  formatTime(started),
	}
}

// FromHistoryEntry converts a journal row to its API representation.
func FromHistoryEntry(entry history.Entry) HistoryEntry {
	return HistoryEntry{
		ID:            entry.ID,
		Path:          entry.Path,
		FinalPath:     entry.FinalPath,
		Status:        string(entry.Status),
		Reason:        entry.Reason,
		RemoteID:      entry.RemoteID,
		RemoteURL:     entry.RemoteURL,
		Detail:        entry.Detail,
		CorrelationID: entry.CorrelationID,
		StartedAt:     formatTime(entry.StartedAt),
		FinishedAt:    formatTime(entry.FinishedAt),
	}
}

// FromHistoryEntries converts a slice of journal rows.
func FromHistoryEntries(entries []history.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromHistoryEntry(entry))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
