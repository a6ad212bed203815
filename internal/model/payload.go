package model

import (
	"encoding/json"
	"time"
)

// --- Inbound message NATS Payload --- //
// InboundMessagePayload is a single realtime provider message event.
type InboundMessagePayload struct {
	MessageID        string                 `json:"message_id,omitempty" validate:"required"`
	SenderJid        string                 `json:"sender_jid,omitempty" validate:"required"`
	ChatJid          string                 `json:"chat_jid,omitempty" validate:"omitempty"`
	PushName         string                 `json:"push_name,omitempty" validate:"omitempty"`
	AvatarURL        string                 `json:"avatar_url,omitempty" validate:"omitempty"`
	Flow             string                 `json:"flow,omitempty" validate:"required,oneof=IN OUT"`
	MessageType      string                 `json:"message_type,omitempty" validate:"omitempty"`
	MessageText      string                 `json:"message_text,omitempty" validate:"omitempty"`
	CompanyID        string                 `json:"company_id,omitempty" validate:"required"`
	MessageObj       map[string]interface{} `json:"message_obj,omitempty" validate:"omitempty"`
	Status           string                 `json:"status,omitempty" validate:"omitempty"`
	MessageTimestamp int64                  `json:"message_timestamp,omitempty" validate:"omitempty"`
}

// ChatKey returns the conversation key the event belongs to. Messages in a
// group thread share the group JID; direct messages key on the sender.
func (p *InboundMessagePayload) ChatKey() string {
	if p.ChatJid != "" {
		return p.ChatJid
	}
	return p.SenderJid
}

// MessageStatusPayload carries delivery receipt transitions for an
// already-logged outbound message.
type MessageStatusPayload struct {
	MessageID string `json:"message_id,omitempty" validate:"required"`
	CompanyID string `json:"company_id,omitempty" validate:"required"`
	Status    string `json:"status,omitempty" validate:"required,oneof=pending sent delivered read failed"`
	IsDeleted bool   `json:"is_deleted,omitempty" validate:"omitempty"`
}

// --- Thread snapshot NATS Payload --- //
// ThreadSnapshotEntry is one provider-reported conversation thread.
type ThreadSnapshotEntry struct {
	Jid             string                 `json:"jid,omitempty" validate:"required"`
	PhoneNumber     string                 `json:"phone_number,omitempty" validate:"omitempty"`
	DisplayName     string                 `json:"display_name,omitempty" validate:"omitempty"`
	AvatarURL       string                 `json:"avatar_url,omitempty" validate:"omitempty"`
	UnreadCount     int32                  `json:"unread_count,omitempty" validate:"omitempty"`
	LastMessageObj  map[string]interface{} `json:"last_message,omitempty" validate:"omitempty"`
	LastMessageText string                 `json:"last_message_text,omitempty" validate:"omitempty"`
	LastActivityTS  int64                  `json:"last_activity_ts,omitempty" validate:"omitempty,gte=0"`
	CompanyID       string                 `json:"company_id,omitempty" validate:"omitempty"`
}

// ThreadSnapshotPayload is a batch of threads from a provider history dump
// or a reconciliation sync request.
type ThreadSnapshotPayload struct {
	Threads     []ThreadSnapshotEntry `json:"threads" validate:"required,dive,required"`
	IsLastBatch bool                  `json:"is_last_batch,omitempty"`
	CompanyID   string                `json:"company_id,omitempty" validate:"omitempty"`
}

// MessageSnapshotPayload is a batch of historical messages.
type MessageSnapshotPayload struct {
	Messages    []InboundMessagePayload `json:"messages" validate:"required,dive,required"`
	IsLastBatch bool                    `json:"is_last_batch,omitempty"`
}

// --- Connection NATS Payload --- //
type ConnectionUpdatePayload struct {
	AccountID   string `json:"account_id,omitempty" validate:"required"`
	CompanyID   string `json:"company_id,omitempty" validate:"required"`
	Status      string `json:"status,omitempty" validate:"required,oneof=connected disconnected"`
	PhoneNumber string `json:"phone_number,omitempty" validate:"omitempty"`
	HostName    string `json:"host_name,omitempty" validate:"omitempty"`
	Version     string `json:"version,omitempty" validate:"omitempty"`
}

// --- DLQ Payload --- //
// DLQPayload represents the structure of messages sent to the Dead Letter Queue.
type DLQPayload struct {
	SourceSubject   string          `json:"source_subject"`          // The original subject the message was published to
	Company         string          `json:"company"`                 // The company ID associated with the message
	OriginalPayload json.RawMessage `json:"original_payload"`        // The raw JSON payload of the original message
	Error           string          `json:"error"`                   // The full error message encountered during processing
	ErrorType       string          `json:"error_type"`              // Type of error ('fatal', 'retryable', 'unknown')
	RetryCount      uint64          `json:"retry_count"`             // How many times delivery was attempted (NumDelivered from NATS metadata)
	MaxRetry        int             `json:"max_retry"`               // The configured maximum delivery attempts for the consumer
	NextRetryAt     *time.Time      `json:"next_retry_at,omitempty"` // Timestamp for the next scheduled retry attempt (set by DLQ worker)
	Timestamp       time.Time       `json:"ts"`                      // Timestamp when the message was sent to the DLQ
}
