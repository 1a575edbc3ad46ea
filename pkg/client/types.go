package client

import (
	"time"

	"github.com/loykin/readyup/internal/report"
)

// RunInfo mirrors the daemon's run representation.
type RunInfo struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Report      *report.RunReport `json:"report,omitempty"`
	Error       string            `json:"error,omitempty"`
}
