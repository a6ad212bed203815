package model

import (
	"encoding/json"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/utils"
)

// RandomJSONB generates random JSON data for testing.
func RandomJSONB() datatypes.JSON {
	jsonData := map[string]interface{}{
		"stub_key": gofakeit.Word(),
		"stub_num": gofakeit.Number(1, 100),
	}
	bytes, _ := json.Marshal(jsonData)
	return datatypes.JSON(bytes)
}

// RandomJSONBMap generates JSON data from a map for testing.
func RandomJSONBMap(data map[string]interface{}) datatypes.JSON {
	bytes, _ := json.Marshal(data)
	return datatypes.JSON(bytes)
}

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// randomJid builds a user JID from fake digits.
func randomJid() string {
	return gofakeit.Numerify("##########") + "@s.whatsapp.net"
}

// NewConversation creates a Conversation instance with default fake data.
func NewConversation(overrideDefaults ...*Conversation) *Conversation {
	jid := randomJid()
	base := &Conversation{
		ID:              uuid.NewString(),
		JID:             jid,
		PhoneNumber:     jid[:len(jid)-len("@s.whatsapp.net")],
		DisplayName:     gofakeit.Name(),
		AvatarURL:       gofakeit.ImageURL(100, 100),
		ChatType:        ChatTypeIndividual,
		AIEnabled:       true,
		UnreadCount:     int32(gofakeit.Number(0, 20)),
		LastMessageText: gofakeit.Sentence(6),
		LastActivityAt:  utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Minute),
		CompanyID:       "tenant_" + gofakeit.LetterN(10),
		LastMetadata:    RandomJSONB(),
		CreatedAt:       utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:       utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		// Allow overriding with empty string by direct assignment
		base.ID = ovr.ID
		base.JID = ovr.JID
		base.PhoneNumber = ovr.PhoneNumber
		base.DisplayName = ovr.DisplayName
		base.AvatarURL = ovr.AvatarURL
		base.ChatType = ovr.ChatType
		base.AIEnabled = ovr.AIEnabled
		base.UnreadCount = ovr.UnreadCount
		base.LastMessageText = ovr.LastMessageText
		base.CompanyID = ovr.CompanyID
		if !ovr.LastActivityAt.IsZero() {
			base.LastActivityAt = ovr.LastActivityAt
		}
		if ovr.LastMetadata != nil {
			base.LastMetadata = ovr.LastMetadata
		}
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
		if !ovr.UpdatedAt.IsZero() {
			base.UpdatedAt = ovr.UpdatedAt
		}
	}
	return base
}

// NewMessage creates a Message instance with default fake data.
func NewMessage(overrideDefaults ...*Message) *Message {
	ts := utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Minute)
	base := &Message{
		MessageID:        gofakeit.UUID(),
		ConversationID:   uuid.NewString(),
		Jid:              randomJid(),
		Flow:             gofakeit.RandomString([]string{MessageFlowIncoming, MessageFlowOutgoing}),
		MessageText:      gofakeit.Sentence(8),
		MessageType:      "text",
		Origin:           MessageOriginProvider,
		CompanyID:        "tenant_" + gofakeit.LetterN(10),
		MessageObj:       RandomJSONB(),
		Status:           gofakeit.RandomString([]string{MessageStatusSent, MessageStatusDelivered, MessageStatusRead}),
		MessageTimestamp: ts.Unix(),
		MessageDate:      ts.Truncate(24 * time.Hour),
		CreatedAt:        utils.Now(),
		UpdatedAt:        utils.Now(),
		LastMetadata:     RandomJSONB(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		// Allow overriding with empty string by direct assignment
		base.MessageID = ovr.MessageID
		base.ConversationID = ovr.ConversationID
		base.Jid = ovr.Jid
		base.Flow = ovr.Flow
		base.MessageText = ovr.MessageText
		base.MessageType = ovr.MessageType
		base.Origin = ovr.Origin
		base.CompanyID = ovr.CompanyID
		base.Status = ovr.Status
		base.IsDeleted = ovr.IsDeleted
		if ovr.MessageObj != nil {
			base.MessageObj = ovr.MessageObj
		}
		if ovr.MessageTimestamp != 0 {
			base.MessageTimestamp = ovr.MessageTimestamp
			base.MessageDate = CreateTimeFromTimestamp(ovr.MessageTimestamp).Truncate(24 * time.Hour)
		}
		if !ovr.MessageDate.IsZero() {
			base.MessageDate = ovr.MessageDate
		}
		if ovr.LastMetadata != nil {
			base.LastMetadata = ovr.LastMetadata
		}
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
		if !ovr.UpdatedAt.IsZero() {
			base.UpdatedAt = ovr.UpdatedAt
		}
	}
	return base
}

// NewLead creates a Lead instance with default fake data.
func NewLead(overrideDefaults ...*Lead) *Lead {
	base := &Lead{
		ID:           uuid.NewString(),
		Name:         gofakeit.Name(),
		PhoneNumber:  gofakeit.Numerify("##########"),
		Jid:          randomJid(),
		ColumnID:     uuid.NewString(),
		Notes:        gofakeit.Sentence(10),
		Tags:         gofakeit.LoremIpsumSentence(3),
		Origin:       gofakeit.RandomString([]string{"whatsapp", "web", "import"}),
		Status:       LeadStatusActive,
		CompanyID:    "tenant_" + gofakeit.LetterN(10),
		CreatedAt:    utils.Now().Add(-time.Duration(gofakeit.Number(1, 365)) * 24 * time.Hour),
		UpdatedAt:    utils.Now(),
		LastMetadata: RandomJSONB(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		// Allow overriding with empty string by direct assignment
		base.ID = ovr.ID
		base.Name = ovr.Name
		base.PhoneNumber = ovr.PhoneNumber
		base.Jid = ovr.Jid
		base.ColumnID = ovr.ColumnID
		base.Notes = ovr.Notes
		base.Tags = ovr.Tags
		base.Origin = ovr.Origin
		base.Status = ovr.Status
		base.CompanyID = ovr.CompanyID
		if ovr.LastMetadata != nil {
			base.LastMetadata = ovr.LastMetadata
		}
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
		if !ovr.UpdatedAt.IsZero() {
			base.UpdatedAt = ovr.UpdatedAt
		}
	}
	return base
}

// NewProviderAccount creates a ProviderAccount instance with default fake data.
func NewProviderAccount(overrideDefaults ...*ProviderAccount) *ProviderAccount {
	connectedAt := utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour)
	base := &ProviderAccount{
		AccountID:       gofakeit.UUID(),
		Status:          gofakeit.RandomString([]string{AccountStatusConnected, AccountStatusDisconnected}),
		PhoneNumber:     gofakeit.Numerify("##########"),
		HostName:        gofakeit.DomainName(),
		Version:         gofakeit.AppVersion(),
		CompanyID:       "tenant_" + gofakeit.LetterN(10),
		LastConnectedAt: &connectedAt,
		CreatedAt:       utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:       utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		// Allow overriding with empty string by direct assignment
		base.AccountID = ovr.AccountID
		base.Status = ovr.Status
		base.PhoneNumber = ovr.PhoneNumber
		base.HostName = ovr.HostName
		base.Version = ovr.Version
		base.CompanyID = ovr.CompanyID
		base.LastConnectedAt = ovr.LastConnectedAt
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
		if !ovr.UpdatedAt.IsZero() {
			base.UpdatedAt = ovr.UpdatedAt
		}
	}
	return base
}
