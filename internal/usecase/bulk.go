package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/genai"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/identity"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/utils"

	"github.com/google/uuid"
)

// Bulk fan-out modes.
const (
	BulkModeTemplate = "template"
	BulkModeAI       = "ai"
)

// BulkRequest describes one fan-out run over the leads of a column.
type BulkRequest struct {
	ColumnID         string `json:"column_id" validate:"required"`
	Mode             string `json:"mode" validate:"required,oneof=template ai"`
	Template         string `json:"template,omitempty"`
	AIPromptTemplate string `json:"ai_prompt_template,omitempty"`
}

// BulkDetail is the per-recipient outcome, in input order.
type BulkDetail struct {
	LeadID    string `json:"lead_id"`
	Name      string `json:"name,omitempty"`
	Recipient string `json:"recipient"`
	Status    string `json:"status"` // sent | failed
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BulkResult reports a completed run. Sent+Failed always equals the number
// of resolved recipients.
type BulkResult struct {
	Sent    int          `json:"sent"`
	Failed  int          `json:"failed"`
	Details []BulkDetail `json:"details"`
}

// BulkRecipient is one resolved recipient of a preview.
type BulkRecipient struct {
	LeadID      string `json:"lead_id"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	JID         string `json:"jid,omitempty"`
	Valid       bool   `json:"valid"`
	Reason      string `json:"reason,omitempty"`
}

// RenderTemplate substitutes {{name}} placeholders in a bulk template.
func RenderTemplate(template, name string) string {
	return strings.ReplaceAll(template, "{{name}}", name)
}

// BulkPreview resolves the recipient list of a column without sending.
func (s *EventService) BulkPreview(ctx context.Context, columnID string) ([]BulkRecipient, error) {
	if columnID == "" {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "column id is required")
	}

	leads, err := s.leadRepo.FindByColumnID(ctx, columnID, 0, 0)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "FindLeadsByColumnID", columnID)
	}

	recipients := make([]BulkRecipient, 0, len(leads))
	for _, lead := range leads {
		r := BulkRecipient{LeadID: lead.ID, Name: lead.Name, PhoneNumber: lead.PhoneNumber}
		jid, jidErr := s.leadJID(lead)
		if jidErr != nil {
			r.Reason = jidErr.Error()
		} else {
			r.JID = jid
			r.Valid = true
		}
		recipients = append(recipients, r)
	}
	return recipients, nil
}

// BulkSend fans one message out to every active lead of a column, strictly
// sequentially with the configured minimum delay between provider calls.
// Per-recipient failures are isolated into the details; the run never fails
// as a whole. Cancellation between recipients marks the remainder failed so
// sent+failed still accounts for every recipient.
func (s *EventService) BulkSend(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	log := logger.FromContext(ctx)

	companyID, err := tenant.FromContext(ctx)
	if err != nil || companyID == "" {
		return nil, apperrors.NewFatal(err, "failed to get tenant ID from context")
	}
	if req.ColumnID == "" {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "column id is required")
	}
	if req.Mode != BulkModeTemplate && req.Mode != BulkModeAI {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "mode must be template or ai")
	}
	if req.Mode == BulkModeTemplate && strings.TrimSpace(req.Template) == "" {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "template is required in template mode")
	}

	observer.IncBulkRun(companyID)

	leads, err := s.leadRepo.FindByColumnID(ctx, req.ColumnID, 0, 0)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "FindLeadsByColumnID", req.ColumnID)
	}

	result := &BulkResult{Details: make([]BulkDetail, 0, len(leads))}
	if len(leads) == 0 {
		log.Info("Bulk run over empty column", zap.String("column_id", req.ColumnID))
		return result, nil
	}

	limit := rate.Inf
	if s.bulkCfg.MinSendDelay > 0 {
		limit = rate.Every(s.bulkCfg.MinSendDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	canceled := false
	for _, lead := range leads {
		detail := BulkDetail{LeadID: lead.ID, Name: lead.Name, Recipient: lead.PhoneNumber}

		if canceled || ctx.Err() != nil {
			canceled = true
			detail.Status = "failed"
			detail.Error = "run canceled"
			result.Failed++
			result.Details = append(result.Details, detail)
			observer.IncBulkRecipient(companyID, "failed")
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			canceled = true
			detail.Status = "failed"
			detail.Error = "run canceled"
			result.Failed++
			result.Details = append(result.Details, detail)
			observer.IncBulkRecipient(companyID, "failed")
			continue
		}

		messageID, sendErr := s.sendToLead(ctx, lead, req)
		if sendErr != nil {
			detail.Status = "failed"
			detail.Error = sendErr.Error()
			result.Failed++
			observer.IncBulkRecipient(companyID, "failed")
			log.Warn("Bulk recipient failed",
				zap.String("lead_id", lead.ID),
				zap.Error(sendErr),
			)
		} else {
			detail.Status = "sent"
			detail.MessageID = messageID
			result.Sent++
			observer.IncBulkRecipient(companyID, "sent")
		}
		result.Details = append(result.Details, detail)
	}

	log.Info("Bulk run finished",
		zap.String("column_id", req.ColumnID),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Bool("canceled", canceled),
	)
	return result, nil
}

// sendToLead renders the message for one lead and dispatches it.
func (s *EventService) sendToLead(ctx context.Context, lead model.Lead, req BulkRequest) (string, error) {
	jid, err := s.leadJID(lead)
	if err != nil {
		return "", err
	}

	text, err := s.renderForLead(ctx, lead, req)
	if err != nil {
		return "", err
	}

	seed := model.Conversation{
		ID:             uuid.NewString(),
		JID:            jid,
		DisplayName:    lead.Name,
		ChatType:       string(identity.Classify(jid)),
		AIEnabled:      true,
		LastActivityAt: utils.Now(),
		CompanyID:      lead.CompanyID,
	}
	if seed.CompanyID == "" {
		seed.CompanyID, _ = tenant.FromContext(ctx)
	}
	if identity.IsIndividual(jid) {
		seed.PhoneNumber = identity.BareNumber(jid)
	}
	conv, err := s.resolveConversation(ctx, jid, seed)
	if err != nil {
		return "", err
	}

	stored, err := s.dispatchText(ctx, conv, text, model.MessageOriginBulk)
	if err != nil {
		return "", err
	}
	return stored.MessageID, nil
}

// renderForLead produces the outbound text for one lead. In AI mode a
// generation failure or empty result falls back to the configured greeting
// template instead of failing the recipient.
func (s *EventService) renderForLead(ctx context.Context, lead model.Lead, req BulkRequest) (string, error) {
	if req.Mode == BulkModeTemplate {
		return RenderTemplate(req.Template, lead.Name), nil
	}

	fallback := RenderTemplate(s.bulkCfg.FallbackText, lead.Name)
	if s.generator == nil {
		return fallback, nil
	}

	genCtx := ctx
	if s.responderCfg.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.responderCfg.Timeout)
		defer cancel()
	}

	prompt := RenderTemplate(req.AIPromptTemplate, lead.Name)
	text, err := s.generator.Generate(genCtx, genai.Request{
		SystemPrompt: s.responderCfg.SystemPrompt,
		UserText:     prompt,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		logger.FromContext(ctx).Warn("Bulk AI generation fell back to template",
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
		return fallback, nil
	}
	return text, nil
}

// leadJID resolves the deliverable JID of a lead, preferring the stored
// normalized jid over the raw phone number.
func (s *EventService) leadJID(lead model.Lead) (string, error) {
	if lead.Jid != "" {
		return lead.Jid, nil
	}
	return identity.Normalize(lead.PhoneNumber, s.defaultCountry)
}
