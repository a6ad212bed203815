package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
)

// HTTPSession delivers sends to an external provider bridge over HTTP. One
// session maps to one connected account on the bridge; the bridge owns the
// actual socket to the messaging provider.
type HTTPSession struct {
	baseURL   string
	token     string
	accountID string
	client    *http.Client
}

// NewHTTPSession creates a session for one bridge account. client may be
// nil; per-send deadlines come from the caller's context either way.
func NewHTTPSession(baseURL, token, accountID string, client *http.Client) *HTTPSession {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSession{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		accountID: accountID,
		client:    client,
	}
}

// AccountID returns the bridge account this session sends through.
func (s *HTTPSession) AccountID() string {
	return s.accountID
}

type bridgeSendRequest struct {
	RecipientJID string `json:"recipient_jid"`
	Text         string `json:"text"`
}

type bridgeSendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// Send posts one message to the bridge and returns the provider-assigned
// message id. HTTP failures are classified into DispatchError kinds: a gone
// account is NotConnected, a rejected recipient is InvalidRecipient, and a
// context deadline is Timeout.
func (s *HTTPSession) Send(ctx context.Context, recipientJID, text string) (string, error) {
	body, err := json.Marshal(bridgeSendRequest{RecipientJID: recipientJID, Text: text})
	if err != nil {
		return "", apperrors.NewDispatchError(apperrors.DispatchProviderRejected, err)
	}

	url := fmt.Sprintf("%s/v1/accounts/%s/messages", s.baseURL, s.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.NewDispatchError(apperrors.DispatchProviderRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", apperrors.NewDispatchError(apperrors.DispatchTimeout, err)
		}
		return "", apperrors.NewDispatchError(apperrors.DispatchProviderRejected, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed bridgeSendResponse
	_ = json.Unmarshal(respBody, &parsed)

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		if parsed.MessageID == "" {
			return "", apperrors.NewDispatchError(apperrors.DispatchProviderRejected,
				fmt.Errorf("bridge returned no message id"))
		}
		return parsed.MessageID, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", apperrors.NewDispatchError(apperrors.DispatchNotConnected, bridgeError(resp.StatusCode, parsed.Error))
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return "", apperrors.NewDispatchError(apperrors.DispatchInvalidRecipient, bridgeError(resp.StatusCode, parsed.Error))
	default:
		return "", apperrors.NewDispatchError(apperrors.DispatchProviderRejected, bridgeError(resp.StatusCode, parsed.Error))
	}
}

func bridgeError(status int, message string) error {
	if message == "" {
		return fmt.Errorf("bridge status %d", status)
	}
	return fmt.Errorf("bridge status %d: %s", status, message)
}

var _ Session = (*HTTPSession)(nil)
