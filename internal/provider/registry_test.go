package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
)

// fakeSession records sends and answers from a scripted response list.
type fakeSession struct {
	mu        sync.Mutex
	accountID string
	sent      []SendRequest
	sentAt    []time.Time
	errs      map[int]error // send index -> scripted failure
	delay     time.Duration
}

func (s *fakeSession) AccountID() string { return s.accountID }

func (s *fakeSession) Send(ctx context.Context, recipientJID, text string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.sent)
	s.sent = append(s.sent, SendRequest{RecipientJID: recipientJID, Text: text})
	s.sentAt = append(s.sentAt, time.Now())
	if err, ok := s.errs[idx]; ok {
		return "", err
	}
	return fmt.Sprintf("provider-msg-%d", idx), nil
}

func (s *fakeSession) sends() []SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SendRequest, len(s.sent))
	copy(out, s.sent)
	return out
}

func newTestRegistry(t *testing.T, minDelay time.Duration) *Registry {
	t.Helper()
	logger.Log = zaptest.NewLogger(t)
	return NewRegistry(8, minDelay, 2*time.Second)
}

func TestRegistry_SendWithoutSession(t *testing.T) {
	reg := newTestRegistry(t, 0)

	_, err := reg.Send(context.Background(), "tenant-a", SendRequest{RecipientJID: "628111@s.whatsapp.net", Text: "hi"})
	require.Error(t, err)
	de, ok := apperrors.AsDispatchError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.DispatchNotConnected, de.Kind)
}

func TestRegistry_SendSuccess(t *testing.T) {
	reg := newTestRegistry(t, 0)
	defer reg.Shutdown()
	session := &fakeSession{accountID: "acct-1"}
	reg.Register("tenant-a", session)

	id, err := reg.Send(context.Background(), "tenant-a", SendRequest{RecipientJID: "628111@s.whatsapp.net", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "provider-msg-0", id)
	require.Len(t, session.sends(), 1)
	assert.Equal(t, "628111@s.whatsapp.net", session.sends()[0].RecipientJID)
}

func TestRegistry_SingleAttemptOnRejection(t *testing.T) {
	reg := newTestRegistry(t, 0)
	defer reg.Shutdown()
	session := &fakeSession{accountID: "acct-1", errs: map[int]error{0: errors.New("blocked by provider")}}
	reg.Register("tenant-a", session)

	_, err := reg.Send(context.Background(), "tenant-a", SendRequest{RecipientJID: "628111@s.whatsapp.net", Text: "x"})
	require.Error(t, err)
	de, ok := apperrors.AsDispatchError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.DispatchProviderRejected, de.Kind)
	// Exactly one provider call, no implicit retry.
	assert.Len(t, session.sends(), 1)
}

func TestRegistry_SessionClassificationPassesThrough(t *testing.T) {
	reg := newTestRegistry(t, 0)
	defer reg.Shutdown()
	session := &fakeSession{
		accountID: "acct-1",
		errs: map[int]error{
			0: apperrors.NewDispatchError(apperrors.DispatchInvalidRecipient, errors.New("not on whatsapp")),
		},
	}
	reg.Register("tenant-a", session)

	_, err := reg.Send(context.Background(), "tenant-a", SendRequest{RecipientJID: "1@s.whatsapp.net", Text: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.DispatchInvalidRecipient, apperrors.DispatchKindOf(err))
}

func TestRegistry_MinDelayBetweenSends(t *testing.T) {
	const delay = 60 * time.Millisecond
	reg := newTestRegistry(t, delay)
	defer reg.Shutdown()
	session := &fakeSession{accountID: "acct-1"}
	reg.Register("tenant-a", session)

	for i := 0; i < 3; i++ {
		_, err := reg.Send(context.Background(), "tenant-a", SendRequest{RecipientJID: "628111@s.whatsapp.net", Text: "m"})
		require.NoError(t, err)
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	require.Len(t, session.sentAt, 3)
	for i := 1; i < len(session.sentAt); i++ {
		gap := session.sentAt[i].Sub(session.sentAt[i-1])
		assert.GreaterOrEqual(t, gap, delay-10*time.Millisecond,
			"send %d followed too quickly (%v)", i, gap)
	}
}

func TestRegistry_SerializedPerTenant(t *testing.T) {
	reg := newTestRegistry(t, 0)
	defer reg.Shutdown()
	session := &fakeSession{accountID: "acct-1", delay: 10 * time.Millisecond}
	reg.Register("tenant-a", session)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := reg.Send(context.Background(), "tenant-a", SendRequest{RecipientJID: "628111@s.whatsapp.net", Text: fmt.Sprintf("m%d", n)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// All five went through the single worker; the session never saw
	// overlapping calls because each Send records under the same lock.
	assert.Len(t, session.sends(), 5)
}

func TestRegistry_DeregisterMakesNotConnected(t *testing.T) {
	reg := newTestRegistry(t, 0)
	session := &fakeSession{accountID: "acct-1"}
	reg.Register("tenant-a", session)
	assert.True(t, reg.Connected("tenant-a"))

	reg.Deregister("tenant-a")
	assert.False(t, reg.Connected("tenant-a"))

	_, err := reg.Send(context.Background(), "tenant-a", SendRequest{RecipientJID: "628111@s.whatsapp.net", Text: "x"})
	assert.Equal(t, apperrors.DispatchNotConnected, apperrors.DispatchKindOf(err))
}

func TestRegistry_ReRegisterReplacesSession(t *testing.T) {
	reg := newTestRegistry(t, 0)
	defer reg.Shutdown()
	first := &fakeSession{accountID: "acct-1"}
	second := &fakeSession{accountID: "acct-2"}
	reg.Register("tenant-a", first)
	reg.Register("tenant-a", second)

	_, err := reg.Send(context.Background(), "tenant-a", SendRequest{RecipientJID: "628111@s.whatsapp.net", Text: "x"})
	require.NoError(t, err)
	assert.Empty(t, first.sends())
	assert.Len(t, second.sends(), 1)
}

func TestRegistry_SendTimeoutOnSlowProvider(t *testing.T) {
	logger.Log = zaptest.NewLogger(t)
	reg := NewRegistry(8, 0, 2*time.Second)
	defer reg.Shutdown()
	session := &fakeSession{accountID: "acct-1", delay: 500 * time.Millisecond}
	reg.Register("tenant-a", session)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := reg.Send(ctx, "tenant-a", SendRequest{RecipientJID: "628111@s.whatsapp.net", Text: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.DispatchTimeout, apperrors.DispatchKindOf(err))
}
