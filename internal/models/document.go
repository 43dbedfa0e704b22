package models

// UploadFile is one local file selected for upload.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// DocumentRef is the display entry for a document the backend accepted.
type DocumentRef struct {
	DisplayName string `json:"display_name"`
}

// UploadResponse is returned by POST /upload-documents and /upload-document.
type UploadResponse struct {
	Message       string   `json:"message,omitempty"`
	UploadID      string   `json:"upload_id,omitempty"`
	UploadedFiles []string `json:"uploaded_files,omitempty"`
	SystemsMap    *string  `json:"systems_map,omitempty"`
}

// UploadResult is what intake reports back to the shell.
type UploadResult struct {
	NoOp           bool     `json:"no_op"`
	Message        string   `json:"message,omitempty"`
	UploadID       string   `json:"upload_id,omitempty"`
	Files          []string `json:"files"`
	DiagramUpdated bool     `json:"diagram_updated"`
}

// Relationship is an edge in the legacy systems map request.
type Relationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// SystemsMapRequest is the body of the legacy POST /systems-map.
type SystemsMapRequest struct {
	Elements      []string       `json:"elements"`
	Relationships []Relationship `json:"relationships"`
}
