package model

// Sink is an append-only destination for feature rows.
type Sink interface {
	// WriteRow appends a single labeled row.
	WriteRow(row FeatureRow) error

	// Close flushes buffered rows and commits the output.
	Close() error

	// Abort releases resources without committing, leaving partial output marked as such.
	Abort() error
}
