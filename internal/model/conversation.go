package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// ChatType classifies what kind of recipient a conversation addresses.
const (
	ChatTypeIndividual = "individual"
	ChatTypeGroup      = "group"
	ChatTypeBroadcast  = "broadcast"
	ChatTypeChannel    = "channel"
)

// Conversation is one thread per (tenant, recipient JID). Rows live in the
// tenant's schema; the JID unique index is the concurrency anchor for
// upserts.
type Conversation struct {
	ID              string         `json:"id" gorm:"primaryKey;type:text"`
	JID             string         `json:"jid" gorm:"column:jid;uniqueIndex" validate:"required"`
	PhoneNumber     string         `json:"phone_number,omitempty" gorm:"column:phone_number;index"`
	DisplayName     string         `json:"display_name,omitempty" gorm:"column:display_name"`
	AvatarURL       string         `json:"avatar_url,omitempty" gorm:"column:avatar_url"`
	ChatType        string         `json:"chat_type,omitempty" gorm:"column:chat_type;default:individual"`
	AIEnabled       bool           `json:"ai_enabled" gorm:"column:ai_enabled;default:true"`
	UnreadCount     int32          `json:"unread_count,omitempty" gorm:"column:unread_count"`
	LastMessageText string         `json:"last_message_text,omitempty" gorm:"column:last_message_text"`
	LastActivityAt  time.Time      `json:"last_activity_at,omitempty" gorm:"column:last_activity_at;index"`
	CompanyID       string         `json:"company_id,omitempty" gorm:"column:company_id"` // CompanyID is implicitly the tenant ID
	LastMetadata    datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
	CreatedAt       time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the base table name for GORM migrations, respecting the Namer.
func (Conversation) TableName(namer schema.Namer) string {
	return namer.TableName("conversations")
}

// ConversationUpdatableFields returns columns an ON CONFLICT clause may
// assign. Excludes id, jid, company_id, ai_enabled and created_at: the AI
// flag is owned by the toggle endpoint and must never be clobbered by sync
// traffic.
func ConversationUpdatableFields() []string {
	return []string{
		"phone_number", "display_name", "avatar_url", "chat_type",
		"unread_count", "last_message_text", "last_activity_at",
		"last_metadata", "updated_at",
	}
}

// ConversationTextualFields are the columns where an empty incoming value
// must not overwrite a stored one (last non-empty write wins).
func ConversationTextualFields() []string {
	return []string{"display_name", "avatar_url", "phone_number"}
}
