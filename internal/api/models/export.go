package models

// ImportMode controls how an import combines with existing data.
type ImportMode string

// Import modes.
const (
	ImportModeMerge   ImportMode = "merge"
	ImportModeReplace ImportMode = "replace"
)

// EncryptedExport is a password-sealed copy of a user's data. Binary fields
// are standard base64.
type EncryptedExport struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// ExportResponse is returned by the export endpoint. The password is shown
// once and never stored.
type ExportResponse struct {
	Password  string          `json:"password"`
	Export    EncryptedExport `json:"export"`
	CreatedAt Timestamp       `json:"createdAt"`
	DoseCount int             `json:"doseCount"`
}

// ImportRequest is the request body for restoring an export.
type ImportRequest struct {
	Export   EncryptedExport `json:"export"`
	Password string          `json:"password"`
	Mode     ImportMode      `json:"mode,omitempty"`
}

// ImportResult summarises a restore.
type ImportResult struct {
	Imported        int        `json:"imported"`
	Mode            ImportMode `json:"mode"`
	ProfileRestored bool       `json:"profileRestored"`
}
