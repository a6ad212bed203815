package model

import (
	"strings"
	"time"
)

// EventType represents different types of events
type EventType string

// Common event type constants (with versioning)
const (
	// Version 1 realtime event types
	V1Connection      EventType = "v1.connection.update"
	V1MessagesInbound EventType = "v1.messages.inbound"
	V1MessagesStatus  EventType = "v1.messages.status"
	// Version 1 snapshot event types (provider history dumps)
	V1ThreadsSnapshot  EventType = "v1.threads.snapshot"
	V1MessagesSnapshot EventType = "v1.messages.snapshot"
)

// MapToBaseEventType attempts to map an input string (potentially with extra identifiers)
// back to a known base EventType constant.
// It returns the mapped EventType and true if successful, or an empty EventType ("")
// and false if no mapping is found.
func MapToBaseEventType(input string) (EventType, bool) {
	// Direct match first: the input may already be the base type.
	switch EventType(input) {
	case V1Connection, V1MessagesInbound, V1MessagesStatus, V1ThreadsSnapshot, V1MessagesSnapshot:
		return EventType(input), true
	}

	// Subjects carry a trailing tenant token (e.g. "v1.messages.inbound.<company>");
	// strip the last component after the final dot and retry.
	lastDotIndex := strings.LastIndex(input, ".")
	if lastDotIndex <= 0 {
		return "", false
	}

	base := input[:lastDotIndex]

	switch EventType(base) {
	case V1Connection:
		return V1Connection, true
	case V1MessagesInbound:
		return V1MessagesInbound, true
	case V1MessagesStatus:
		return V1MessagesStatus, true
	case V1ThreadsSnapshot:
		return V1ThreadsSnapshot, true
	case V1MessagesSnapshot:
		return V1MessagesSnapshot, true
	default:
		return "", false
	}
}

type MessageMetadata struct {
	ConsumerSequence uint64
	StreamSequence   uint64
	NumDelivered     uint64
	NumPending       uint64
	Timestamp        time.Time
	Stream           string
	Consumer         string
	Domain           string
	MessageID        string
	MessageSubject   string
	CompanyID        string
}

// ToLastMetadata converts MessageMetadata to LastMetadata
func (e MessageMetadata) ToLastMetadata() *LastMetadata {
	return &LastMetadata{
		ConsumerSequence: int64(e.ConsumerSequence),
		StreamSequence:   int64(e.StreamSequence),
		Stream:           e.Stream,
		Consumer:         e.Consumer,
		Domain:           e.Domain,
		MessageID:        e.MessageID,
		MessageSubject:   e.MessageSubject,
		CompanyID:        e.CompanyID,
	}
}

// GetVersion extracts the version from an event type
// Returns the version string (e.g., "v1") or an empty string if no version specified
func (e EventType) GetVersion() string {
	parts := strings.SplitN(string(e), ".", 2)
	if len(parts) < 2 {
		return ""
	}

	// Check if the first part starts with 'v' followed by a number
	if len(parts[0]) >= 2 && parts[0][0] == 'v' {
		return parts[0]
	}

	return ""
}

// GetBaseType returns the event type without the version prefix
// For example: "v1.messages.inbound" -> "messages.inbound"
func (e EventType) GetBaseType() EventType {
	version := e.GetVersion()
	if version == "" {
		return e
	}

	// Remove the version prefix and the following dot
	return EventType(strings.TrimPrefix(string(e), version+"."))
}

// WithVersion returns a new EventType with the specified version
// For example: "messages.inbound" with version "v2" -> "v2.messages.inbound"
func (e EventType) WithVersion(version string) EventType {
	// If the event already has a version, remove it first
	baseType := e.GetBaseType()

	// Add the new version
	return EventType(version + "." + string(baseType))
}

// LastMetadata represents a last message metadata from nats
type LastMetadata struct {
	ConsumerSequence int64  `json:"consumer_sequence"`
	StreamSequence   int64  `json:"stream_sequence"`
	Stream           string `json:"stream"`
	Consumer         string `json:"consumer"`
	Domain           string `json:"domain"`
	MessageID        string `json:"message_id"`
	MessageSubject   string `json:"message_subject"`
	CompanyID        string `json:"company_id"`
}
