package model

import "time"

// Progress statuses reported per capture file.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// ProgressEvent describes the outcome of one capture file in an extraction run.
type ProgressEvent struct {
	Index     int
	Total     int
	Path      string
	Label     string
	Status    string
	Rows      int
	Timestamp time.Time
}

// Notifier defines a generic interface for publishing extraction progress.
type Notifier interface {
	Notify(event ProgressEvent) error
	Close() error
}
