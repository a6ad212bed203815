package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

const (
	MessageFlowIncoming = "IN"
	MessageFlowOutgoing = "OUT"
)

// Message delivery statuses, in provider order.
const (
	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// Message origins record which pipeline produced an outbound row.
const (
	MessageOriginProvider  = "provider"
	MessageOriginManual    = "manual"
	MessageOriginAutoReply = "auto_reply"
	MessageOriginBulk      = "bulk"
)

// Message is one append-only row of the message log. The table is
// range-partitioned by message_date; idempotency rests on the unique index
// over (conversation_id, message_id, message_date).
type Message struct {
	ID               int64          `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	MessageID        string         `json:"id" gorm:"column:message_id;index"`
	ConversationID   string         `json:"conversation_id,omitempty" gorm:"column:conversation_id;index"`
	Jid              string         `json:"jid,omitempty" gorm:"column:jid;index"`
	Flow             string         `json:"flow,omitempty" gorm:"column:flow"`
	MessageText      string         `json:"message_text,omitempty" gorm:"column:message_text"`
	MessageType      string         `json:"message_type,omitempty" gorm:"column:message_type"`
	Origin           string         `json:"origin,omitempty" gorm:"column:origin"`
	CompanyID        string         `json:"company_id,omitempty" gorm:"column:company_id"` // CompanyID is implicitly the tenant ID
	MessageObj       datatypes.JSON `json:"message_obj,omitempty" gorm:"type:jsonb;column:message_obj"`
	Status           string         `json:"status,omitempty" gorm:"column:status"`
	IsDeleted        bool           `json:"is_deleted,omitempty" gorm:"column:is_deleted;default:false"`
	MessageTimestamp int64          `json:"message_timestamp,omitempty" gorm:"column:message_timestamp"`
	MessageDate      time.Time      `gorm:"column:message_date;type:date;not null"`
	CreatedAt        time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
	LastMetadata     datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (Message) TableName(namer schema.Namer) string {
	return namer.TableName("messages")
}

// CreateTimeFromTimestamp creates a time.Time from a Unix timestamp
func CreateTimeFromTimestamp(timestamp int64) time.Time {
	if timestamp > 0 {
		return time.Unix(timestamp, 0).UTC()
	}
	return time.Time{}
}

// MessageUpdatableFields returns the columns an ON CONFLICT clause may
// assign when a replayed provider id collides with an existing row. The
// text and flow of the original row are immutable; only delivery metadata
// moves.
func MessageUpdatableFields() []string {
	return []string{
		"status", "last_metadata", "updated_at",
	}
}
