package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
)

func TestHTTPSession_Send(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody bridgeSendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message_id":"prov-777"}`))
	}))
	defer server.Close()

	session := NewHTTPSession(server.URL+"/", "secret-token", "acct-1", nil)
	assert.Equal(t, "acct-1", session.AccountID())

	id, err := session.Send(context.Background(), "628123456789@s.whatsapp.net", "hello")

	require.NoError(t, err)
	assert.Equal(t, "prov-777", id)
	assert.Equal(t, "/v1/accounts/acct-1/messages", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "628123456789@s.whatsapp.net", gotBody.RecipientJID)
	assert.Equal(t, "hello", gotBody.Text)
}

func TestHTTPSession_StatusClassification(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		body     string
		expected apperrors.DispatchKind
	}{
		{"gone account is not connected", http.StatusNotFound, `{"error":"unknown account"}`, apperrors.DispatchNotConnected},
		{"logged-out account is not connected", http.StatusGone, `{}`, apperrors.DispatchNotConnected},
		{"rejected recipient", http.StatusBadRequest, `{"error":"bad jid"}`, apperrors.DispatchInvalidRecipient},
		{"unprocessable recipient", http.StatusUnprocessableEntity, `{}`, apperrors.DispatchInvalidRecipient},
		{"server failure is provider rejected", http.StatusInternalServerError, `{}`, apperrors.DispatchProviderRejected},
		{"success without message id is provider rejected", http.StatusOK, `{}`, apperrors.DispatchProviderRejected},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			session := NewHTTPSession(server.URL, "", "acct-1", nil)
			_, err := session.Send(context.Background(), "628123456789@s.whatsapp.net", "hello")

			require.Error(t, err)
			assert.Equal(t, tc.expected, apperrors.DispatchKindOf(err))
		})
	}
}

func TestHTTPSession_DeadlineIsTimeout(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	session := NewHTTPSession(server.URL, "", "acct-1", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := session.Send(ctx, "628123456789@s.whatsapp.net", "hello")

	require.Error(t, err)
	assert.Equal(t, apperrors.DispatchTimeout, apperrors.DispatchKindOf(err))
}
