package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-otp-auth/internal/infrastructure/smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(ctx context.Context, msg smtp.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockMailer) Check(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, subject, body string, attrs map[string]string) (string, error) {
	args := m.Called(ctx, subject, body, attrs)
	return args.String(0), args.Error(1)
}

func (m *mockPublisher) Check(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mapSource map[string]string

func (s mapSource) Load(_ context.Context, name string) (string, error) {
	if v, ok := s[name]; ok {
		return v, nil
	}
	return "", errors.New("NoSuchKey")
}

// --- helpers ---

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(context.Background(), "otp-auth", nil)
	require.NoError(t, err)
	return r
}

var notice = OTPNotice{To: "a@x.com", Code: "042917", Window: 5 * time.Minute}

// --- Renderer ---

func TestRenderer_Defaults(t *testing.T) {
	msg, err := newRenderer(t).Render(notice)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, Subject, msg.Subject)
	assert.Contains(t, msg.TextBody, "042917")
	assert.Contains(t, msg.TextBody, "5 minutes")
	assert.Contains(t, msg.HTMLBody, "042917")
	assert.Contains(t, msg.HTMLBody, "otp-auth")
}

func TestRenderer_Override(t *testing.T) {
	src := mapSource{"otp.txt": "code={{.Code}} ttl={{.Minutes}}"}
	r, err := NewRenderer(context.Background(), "otp-auth", src)
	require.NoError(t, err)

	msg, err := r.Render(OTPNotice{To: "a@x.com", Code: "111111", Window: 90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "code=111111 ttl=2", msg.TextBody)
	assert.Contains(t, msg.HTMLBody, "111111")
}

func TestRenderer_BrokenOverrideFallsBack(t *testing.T) {
	src := mapSource{"otp.html": "{{.Code"}
	r, err := NewRenderer(context.Background(), "otp-auth", src)
	require.NoError(t, err)

	msg, err := r.Render(notice)
	require.NoError(t, err)
	assert.Contains(t, msg.HTMLBody, "042917")
}

func TestRenderer_EscapesHTML(t *testing.T) {
	r, err := NewRenderer(context.Background(), "<script>", nil)
	require.NoError(t, err)
	msg, err := r.Render(notice)
	require.NoError(t, err)
	assert.NotContains(t, msg.HTMLBody, "<script>")
}

// --- Dispatcher ---

func TestDispatch_EmailDelivered(t *testing.T) {
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(m smtp.Message) bool {
		return m.To == "a@x.com" && m.Subject == Subject && m.HTMLBody != "" && m.TextBody != ""
	})).Return(nil)

	res := NewDispatcher(NewEmailChannel(mailer), newRenderer(t)).Dispatch(context.Background(), notice)
	assert.True(t, res.Delivered)
	assert.Equal(t, MethodEmail, res.Method)
	assert.False(t, res.PendingDelivery())
	assert.NoError(t, res.Err)
}

func TestDispatch_EmailFailsFallsBackToConsole(t *testing.T) {
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	res := NewDispatcher(NewEmailChannel(mailer), newRenderer(t)).Dispatch(context.Background(), notice)
	assert.True(t, res.Delivered)
	assert.Equal(t, MethodConsoleFallback, res.Method)
	assert.True(t, res.PendingDelivery())
	assert.ErrorContains(t, res.Err, "connection refused")
}

func TestDispatch_ConsolePrimary(t *testing.T) {
	res := NewDispatcher(NewConsoleChannel(), newRenderer(t)).Dispatch(context.Background(), notice)
	assert.True(t, res.Delivered)
	assert.Equal(t, MethodConsole, res.Method)
	assert.True(t, res.PendingDelivery())
}

func TestDispatch_Queued(t *testing.T) {
	pub := &mockPublisher{}
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pub.On("Publish", mock.Anything, Subject, mock.MatchedBy(func(body string) bool {
		var q queuedEmail
		return json.Unmarshal([]byte(body), &q) == nil &&
			q.To == "a@x.com" && q.ExpiresAt.Equal(fixed.Add(5*time.Minute))
	}), map[string]string{"event": "otp.issued"}).Return("m-1", nil)

	ch := NewQueueChannel(pub)
	ch.now = func() time.Time { return fixed }
	res := NewDispatcher(ch, newRenderer(t)).Dispatch(context.Background(), notice)
	assert.Equal(t, MethodQueued, res.Method)
	assert.True(t, res.PendingDelivery())
	pub.AssertExpectations(t)
}

func TestDispatch_ExpiredContextStillFallsBack(t *testing.T) {
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.Anything).Return(context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewDispatcher(NewEmailChannel(mailer), newRenderer(t)).Dispatch(ctx, notice)
	assert.Equal(t, MethodConsoleFallback, res.Method)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestDispatcher_Check(t *testing.T) {
	mailer := &mockMailer{}
	mailer.On("Check", mock.Anything).Return(errors.New("dial tcp: refused")).Once()
	mailer.On("Check", mock.Anything).Return(nil).Once()
	d := NewDispatcher(NewEmailChannel(mailer), newRenderer(t))

	h := d.Check(context.Background())
	assert.Equal(t, Health{Channel: MethodEmail, Ready: false, Error: "dial tcp: refused"}, h)
	assert.True(t, d.Check(context.Background()).Ready)

	console := NewDispatcher(NewConsoleChannel(), newRenderer(t)).Check(context.Background())
	assert.Equal(t, Health{Channel: MethodConsole, Ready: true}, console)
}

func TestResult_PendingDelivery(t *testing.T) {
	assert.False(t, Result{Method: MethodEmail}.PendingDelivery())
	for _, m := range []string{MethodQueued, MethodConsole, MethodConsoleFallback} {
		assert.True(t, Result{Method: m}.PendingDelivery(), m)
	}
}
