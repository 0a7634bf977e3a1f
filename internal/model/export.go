package model

import (
	"time"

	"github.com/google/uuid"
)

type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusCompleted ExportStatus = "completed"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportJob is a bulk image export requested from the admin console.
type ExportJob struct {
	ID          uuid.UUID           `json:"id"`
	OrderIDs    []uuid.UUID         `json:"orderIds"`
	RequestedBy string              `json:"requestedBy"`
	Status      ExportStatus        `json:"status"`
	Progress    float64             `json:"progress"`
	Results     []ExportOrderResult `json:"results,omitempty"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

type ExportOrderResult struct {
	OrderID     uuid.UUID `json:"orderId"`
	ObjectPath  string    `json:"objectPath,omitempty"`
	Files       int       `json:"files"`
	Failed      int       `json:"failed"`
	Error       string    `json:"error,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
}

// ExportMessage is published on the exports queue.
type ExportMessage struct {
	JobID uuid.UUID `json:"job_id"`
}
