package queue

const (
	TypeIngestFolder   = "ingest:folder"
	TypeIngestDocument = "ingest:document"
)

// IngestFolderPayload asks a worker to walk a tenant's root folder and fan
// out one document task per file.
type IngestFolderPayload struct {
	RunID    string `json:"run_id"`
	TenantID string `json:"tenant_id"`
}

type IngestDocumentPayload struct {
	RunID    string `json:"run_id"`
	TenantID string `json:"tenant_id"`
	FileID   string `json:"file_id"`
}
