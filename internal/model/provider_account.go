package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Provider session statuses.
const (
	AccountStatusConnected    = "connected"
	AccountStatusDisconnected = "disconnected"
)

// ProviderAccount tracks the tenant's WhatsApp session state. The session
// registry persists connect/disconnect transitions here so the dispatch
// layer can explain NOT_CONNECTED failures after a restart.
type ProviderAccount struct {
	// ID is the internal database primary key.
	ID int64 `json:"-" gorm:"primaryKey;autoIncrement"`
	// AccountID is the unique identifier handed out by the provider client.
	AccountID string `json:"account_id" gorm:"column:account_id;uniqueIndex" validate:"required"`
	// Status is 'connected' or 'disconnected'.
	Status string `json:"status,omitempty" gorm:"column:status"`
	// PhoneNumber is the number registered for the session.
	PhoneNumber string `json:"phone_number,omitempty" gorm:"column:phone_number"`
	// HostName is the device or host running the provider client.
	HostName string `json:"host_name,omitempty" gorm:"column:host_name"`
	// Version stores the provider client version.
	Version string `json:"version,omitempty" gorm:"column:version"`
	// CompanyID identifies the tenant this session belongs to.
	CompanyID string `json:"company_id,omitempty" gorm:"column:company_id"`
	// LastConnectedAt is the time of the most recent successful connect.
	LastConnectedAt *time.Time     `json:"last_connected_at,omitempty" gorm:"column:last_connected_at"`
	CreatedAt       time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
	LastMetadata    datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
}

// TableName specifies the table name for GORM.
func (ProviderAccount) TableName(namer schema.Namer) string {
	return namer.TableName("provider_accounts")
}

// ProviderAccountUpdateColumns returns columns an upsert may assign.
// Excludes primary key, account_id, company_id and created_at.
func ProviderAccountUpdateColumns() []string {
	return []string{
		"status",
		"phone_number",
		"host_name",
		"version",
		"last_connected_at",
		"updated_at",
	}
}
