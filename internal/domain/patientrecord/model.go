// Package patientrecord stores clinical record summaries. It is the
// reference tenant-scoped resource: every read and write is bounded by
// the caller's active organization and every access is audited.
package patientrecord

import (
	"time"

	"github.com/google/uuid"
)

// Record is one patient's clinical record within an organization.
type Record struct {
	ID             uuid.UUID              `json:"id"`
	OrganizationID uuid.UUID              `json:"organization_id"`
	MRN            string                 `json:"mrn"`
	PatientName    string                 `json:"patient_name"`
	BirthDate      *time.Time             `json:"birth_date,omitempty"`
	Summary        string                 `json:"summary,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	CreatedBy      uuid.UUID              `json:"created_by"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}
