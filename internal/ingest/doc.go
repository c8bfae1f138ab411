// Package ingest turns folder events into uploads.
//
// The Controller filters candidate paths by suffix and feeds them to a
// single-worker FIFO queue. For each dequeued file it waits for the size to
// settle, runs one upload session, and then performs the terminal action:
// a successful upload is moved into the uploaded folder, a failed one stays
// where it is. Every terminal state produces exactly one notification and one
// journal entry. Work abandoned by shutdown produces neither.
package ingest
