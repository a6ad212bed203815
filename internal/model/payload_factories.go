package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/utils"
)

// Ensure gofakeit is seeded. It might already be seeded by factories.go's init,
// but adding it here ensures this file is self-sufficient if used independently.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// --- NATS Payload Factories ---

// NewInboundMessagePayload creates an InboundMessagePayload with default fake data.
func NewInboundMessagePayload(overrideDefaults ...*InboundMessagePayload) *InboundMessagePayload {
	base := &InboundMessagePayload{
		MessageID:        gofakeit.UUID(),
		SenderJid:        gofakeit.Numerify("##########") + "@s.whatsapp.net",
		PushName:         gofakeit.Username(),
		AvatarURL:        gofakeit.ImageURL(100, 100),
		Flow:             MessageFlowIncoming,
		MessageType:      "text",
		MessageText:      gofakeit.Sentence(8),
		CompanyID:        "tenant_" + gofakeit.LetterN(10),
		MessageObj:       map[string]interface{}{"text": gofakeit.Sentence(5)},
		Status:           MessageStatusDelivered,
		MessageTimestamp: utils.Now().Add(-time.Duration(gofakeit.Number(1, 60)) * time.Minute).Unix(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.MessageID != "" {
			base.MessageID = ovr.MessageID
		}
		if ovr.SenderJid != "" {
			base.SenderJid = ovr.SenderJid
		}
		if ovr.ChatJid != "" {
			base.ChatJid = ovr.ChatJid
		}
		if ovr.PushName != "" {
			base.PushName = ovr.PushName
		}
		if ovr.AvatarURL != "" {
			base.AvatarURL = ovr.AvatarURL
		}
		if ovr.Flow != "" {
			base.Flow = ovr.Flow
		}
		if ovr.MessageType != "" {
			base.MessageType = ovr.MessageType
		}
		if ovr.MessageText != "" {
			base.MessageText = ovr.MessageText
		}
		if ovr.CompanyID != "" {
			base.CompanyID = ovr.CompanyID
		}
		if ovr.MessageObj != nil {
			base.MessageObj = ovr.MessageObj
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.MessageTimestamp != 0 {
			base.MessageTimestamp = ovr.MessageTimestamp
		}
	}
	return base
}

// NewMessageStatusPayload creates a MessageStatusPayload with default fake data.
func NewMessageStatusPayload(overrideDefaults ...*MessageStatusPayload) *MessageStatusPayload {
	base := &MessageStatusPayload{
		MessageID: gofakeit.UUID(),
		CompanyID: "tenant_" + gofakeit.LetterN(10),
		Status:    gofakeit.RandomString([]string{MessageStatusSent, MessageStatusDelivered, MessageStatusRead}),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.MessageID != "" {
			base.MessageID = ovr.MessageID
		}
		if ovr.CompanyID != "" {
			base.CompanyID = ovr.CompanyID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		base.IsDeleted = ovr.IsDeleted // Override boolean
	}
	return base
}

// NewThreadSnapshotEntry creates a ThreadSnapshotEntry with default fake data.
func NewThreadSnapshotEntry(overrideDefaults ...*ThreadSnapshotEntry) *ThreadSnapshotEntry {
	digits := gofakeit.Numerify("##########")
	base := &ThreadSnapshotEntry{
		Jid:             digits + "@s.whatsapp.net",
		PhoneNumber:     digits,
		DisplayName:     gofakeit.Name(),
		AvatarURL:       gofakeit.ImageURL(100, 100),
		UnreadCount:     int32(gofakeit.Number(0, 50)),
		LastMessageObj:  map[string]interface{}{"text": gofakeit.Sentence(5), "ts": utils.Now().Unix()},
		LastMessageText: gofakeit.Sentence(5),
		LastActivityTS:  utils.Now().Add(-time.Duration(gofakeit.Number(1, 60)) * time.Minute).Unix(),
		CompanyID:       "tenant_" + gofakeit.LetterN(10),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.Jid != "" {
			base.Jid = ovr.Jid
		}
		if ovr.PhoneNumber != "" {
			base.PhoneNumber = ovr.PhoneNumber
		}
		if ovr.DisplayName != "" {
			base.DisplayName = ovr.DisplayName
		}
		if ovr.AvatarURL != "" {
			base.AvatarURL = ovr.AvatarURL
		}
		if ovr.UnreadCount != 0 {
			base.UnreadCount = ovr.UnreadCount
		}
		if ovr.LastMessageObj != nil {
			base.LastMessageObj = ovr.LastMessageObj
		}
		if ovr.LastMessageText != "" {
			base.LastMessageText = ovr.LastMessageText
		}
		if ovr.LastActivityTS != 0 {
			base.LastActivityTS = ovr.LastActivityTS
		}
		if ovr.CompanyID != "" {
			base.CompanyID = ovr.CompanyID
		}
	}
	return base
}

// NewConnectionUpdatePayload creates a ConnectionUpdatePayload with default fake data.
func NewConnectionUpdatePayload(overrideDefaults ...*ConnectionUpdatePayload) *ConnectionUpdatePayload {
	base := &ConnectionUpdatePayload{
		AccountID:   gofakeit.UUID(),
		CompanyID:   "tenant_" + gofakeit.LetterN(10),
		Status:      gofakeit.RandomString([]string{AccountStatusConnected, AccountStatusDisconnected}),
		PhoneNumber: gofakeit.Numerify("##########"),
		HostName:    gofakeit.DomainName(),
		Version:     gofakeit.AppVersion(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.AccountID != "" {
			base.AccountID = ovr.AccountID
		}
		if ovr.CompanyID != "" {
			base.CompanyID = ovr.CompanyID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.PhoneNumber != "" {
			base.PhoneNumber = ovr.PhoneNumber
		}
		if ovr.HostName != "" {
			base.HostName = ovr.HostName
		}
		if ovr.Version != "" {
			base.Version = ovr.Version
		}
	}
	return base
}

// NewThreadSnapshotPayload creates a ThreadSnapshotPayload containing count
// entries (default 3).
func NewThreadSnapshotPayload(count *int, overrideDefaults ...*ThreadSnapshotEntry) *ThreadSnapshotPayload {
	numThreads := 3
	if count != nil && *count >= 0 {
		numThreads = *count
	}

	threads := make([]ThreadSnapshotEntry, numThreads)
	for i := 0; i < numThreads; i++ {
		threads[i] = *NewThreadSnapshotEntry(overrideDefaults...)
	}

	return &ThreadSnapshotPayload{Threads: threads}
}

// NewMessageSnapshotPayload creates a MessageSnapshotPayload containing count
// messages (default 3).
func NewMessageSnapshotPayload(count *int, overrideDefaults ...*InboundMessagePayload) *MessageSnapshotPayload {
	numMessages := 3
	if count != nil && *count >= 0 {
		numMessages = *count
	}

	messages := make([]InboundMessagePayload, numMessages)
	for i := 0; i < numMessages; i++ {
		messages[i] = *NewInboundMessagePayload(overrideDefaults...)
	}

	return &MessageSnapshotPayload{Messages: messages}
}
