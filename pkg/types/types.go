package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONMap is a custom type that can handle JSON serialization for both PostgreSQL and SQLite
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for GORM
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for GORM
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}

	return json.Unmarshal(bytes, j)
}

// UploadStatus is the lifecycle state of an upload session
type UploadStatus string

const (
	StatusOpen      UploadStatus = "OPEN"
	StatusFinalized UploadStatus = "FINALIZED"
	StatusAborted   UploadStatus = "ABORTED"
)

// IsTerminal reports whether no further chunk writes can be admitted
func (s UploadStatus) IsTerminal() bool {
	return s == StatusFinalized || s == StatusAborted
}

// UploadSnapshot is a point-in-time view of an upload session. It is what
// status queries return and what the retired status cache stores.
type UploadSnapshot struct {
	Token          string       `json:"upload_token"`
	Filename       string       `json:"filename"`
	Status         UploadStatus `json:"status"`
	ExpectedOffset int64        `json:"expected_offset"`
	Digest         string       `json:"sha256,omitempty"`
	StoragePath    string       `json:"path,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	LastUpdate     time.Time    `json:"last_update"`
}

// UploadRecord is the audit row written when a session reaches a terminal state
type UploadRecord struct {
	ID          uuid.UUID    `json:"id" gorm:"primaryKey"`
	Token       string       `json:"upload_token" gorm:"uniqueIndex;not null"`
	Filename    string       `json:"filename" gorm:"not null"`
	Status      UploadStatus `json:"status" gorm:"index;not null"`
	Size        int64        `json:"size"`
	SHA256      string       `json:"sha256" gorm:"index"`
	StoragePath string       `json:"storage_path"`
	Reason      string       `json:"reason"`
	Metadata    JSONMap      `json:"metadata" gorm:"serializer:json"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// BeforeCreate generates a UUID for the record ID
func (r *UploadRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// UploadRecordFilter for listing ledger rows
type UploadRecordFilter struct {
	Status   UploadStatus `json:"status"`
	Filename string       `json:"filename"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
}
