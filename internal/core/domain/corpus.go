package domain

import "time"

type ImportStatus string

const (
	StatusUploaded   ImportStatus = "uploaded"
	StatusProcessing ImportStatus = "processing"
	StatusReady      ImportStatus = "ready"
	StatusFailed     ImportStatus = "failed"
)

// CorpusImport tracks one uploaded corpus file through ingestion.
type CorpusImport struct {
	ID           string       `json:"id"`
	Filename     string       `json:"filename"`
	StoragePath  string       `json:"storage_path"`
	Translation  string       `json:"translation"`
	PassageCount int          `json:"passage_count"`
	Status       ImportStatus `json:"status"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
