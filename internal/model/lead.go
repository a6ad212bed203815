package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Lead statuses.
const (
	LeadStatusActive   = "ACTIVE"
	LeadStatusDisabled = "DISABLED"
)

// Lead is a CRM contact sitting in a pipeline column. Bulk fan-out resolves
// its recipients from leads of a single column.
type Lead struct {
	ID           string         `json:"id" gorm:"primaryKey;type:text"`
	Name         string         `json:"name,omitempty" gorm:"type:text"`
	PhoneNumber  string         `json:"phone_number" gorm:"type:text" validate:"required"`
	Jid          string         `json:"jid,omitempty" gorm:"column:jid;index;type:text"`
	ColumnID     string         `json:"column_id" gorm:"column:column_id;index;type:text" validate:"required"`
	Notes        string         `json:"notes,omitempty" gorm:"type:text"`
	Tags         string         `json:"tags,omitempty" gorm:"type:text"`
	Origin       string         `json:"origin,omitempty" gorm:"type:text"`
	Status       string         `json:"status,omitempty" gorm:"type:text;default:ACTIVE"`
	CompanyID    string         `json:"company_id,omitempty" gorm:"column:company_id"`
	CreatedAt    time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
	LastMetadata datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
}

// TableName specifies the table name for the Lead model, respecting the Namer.
func (Lead) TableName(namer schema.Namer) string {
	return namer.TableName("leads")
}

// LeadUpdateColumns returns columns an ON CONFLICT clause may assign.
func LeadUpdateColumns() []string {
	return []string{
		"name", "jid", "column_id", "notes", "tags", "status",
		"last_metadata", "updated_at",
	}
}
