package store

import "time"

// Run records one archive or unarchive invocation
type Run struct {
	ID           string // uuid
	Operation    string // "archive" or "unarchive"
	Format       string
	Src          string // comma-separated sources
	Dest         string
	State        string
	DestState    string
	Changed      bool
	Targets      int
	Missing      int
	DestBytes    int64
	Status       string // "running", "success", "failed"
	ErrorMessage string
	StartTime    time.Time
	EndTime      time.Time
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Operation string
	Status    string
	Limit     int
}
