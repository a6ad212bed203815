package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMapToBaseEventType(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedType  EventType
		expectedFound bool
	}{
		{"direct match realtime", string(V1MessagesInbound), V1MessagesInbound, true},
		{"direct match snapshot", string(V1ThreadsSnapshot), V1ThreadsSnapshot, true},
		{"strip tenant realtime", "v1.messages.inbound.tenant123", V1MessagesInbound, true},
		{"strip tenant snapshot", "v1.threads.snapshot.tenantXYZ", V1ThreadsSnapshot, true},
		{"strip tenant connection", "v1.connection.update.tenantABC", V1Connection, true},
		{"strip tenant status", "v1.messages.status.tenant1", V1MessagesStatus, true},
		{"no known base", "v1.unknown.event.tenant1", "", false},
		{"no dot to strip", "unknown", "", false},
		{"only dot", ".", "", false},
		{"leading dot", ".v1.messages.inbound", "", false},
		{"empty string", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actualType, actualFound := MapToBaseEventType(tt.input)
			assert.Equal(t, tt.expectedType, actualType)
			assert.Equal(t, tt.expectedFound, actualFound)
		})
	}
}

func TestMessageMetadata_ToLastMetadata(t *testing.T) {
	now := time.Now()
	input := MessageMetadata{
		ConsumerSequence: 10,
		StreamSequence:   100,
		NumDelivered:     1,
		NumPending:       5,
		Timestamp:        now,
		Stream:           "streamA",
		Consumer:         "consumerB",
		Domain:           "domainC",
		MessageID:        "msgD",
		MessageSubject:   "subjectE",
		CompanyID:        "tenantF",
	}

	expected := &LastMetadata{
		ConsumerSequence: 10,
		StreamSequence:   100,
		Stream:           "streamA",
		Consumer:         "consumerB",
		Domain:           "domainC",
		MessageID:        "msgD",
		MessageSubject:   "subjectE",
		CompanyID:        "tenantF",
	}

	actual := input.ToLastMetadata()
	assert.Equal(t, expected, actual)
}

func TestEventType_GetVersion(t *testing.T) {
	tests := []struct {
		name     string
		e        EventType
		expected string
	}{
		{"v1 event", V1MessagesInbound, "v1"},
		{"snapshot v1 event", V1ThreadsSnapshot, "v1"},
		{"no version prefix", EventType("messages.inbound"), ""},
		{"empty string", EventType(""), ""},
		{"malformed version", EventType("vx.messages.inbound"), "vx"},
		{"version only", EventType("v2"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.e.GetVersion())
		})
	}
}

func TestEventType_GetBaseType(t *testing.T) {
	tests := []struct {
		name     string
		e        EventType
		expected EventType
	}{
		{"v1 event", V1MessagesStatus, EventType("messages.status")},
		{"snapshot v1 event", V1ThreadsSnapshot, EventType("threads.snapshot")},
		{"no version prefix", EventType("connection.update"), EventType("connection.update")},
		{"empty string", EventType(""), EventType("")},
		{"malformed version", EventType("vx.test.event"), EventType("test.event")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.e.GetBaseType())
		})
	}
}

func TestEventType_WithVersion(t *testing.T) {
	tests := []struct {
		name       string
		e          EventType
		newVersion string
		expected   EventType
	}{
		{"add v2 to base type", EventType("messages.inbound"), "v2", EventType("v2.messages.inbound")},
		{"change v1 to v2", V1MessagesStatus, "v2", EventType("v2.messages.status")},
		{"add v1 to snapshot base", EventType("threads.snapshot"), "v1", V1ThreadsSnapshot},
		{"add empty version", V1Connection, "", EventType(".connection.update")}, // Adds dot prefix
		{"add version to empty type", EventType(""), "v3", EventType("v3.")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.e.WithVersion(tt.newVersion))
		})
	}
}
