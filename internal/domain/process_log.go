package domain

import "time"

type ProcessStatus string

const (
	StatusPending    ProcessStatus = "pending"
	StatusProcessing ProcessStatus = "processing"
	StatusSuccess    ProcessStatus = "success"
	StatusEmpty      ProcessStatus = "empty"
	StatusError      ProcessStatus = "error"
)

// Terminal reports whether a source has finished its lifecycle.
func (s ProcessStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusEmpty || s == StatusError
}

type ProcessLog struct {
	ID         string        `json:"id"`
	SourceName string        `json:"fileName"`
	Status     ProcessStatus `json:"status"`
	Message    string        `json:"message,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
