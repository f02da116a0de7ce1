package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/internal/notify"
	"github.com/hugh/funnel-builder/internal/testutil"
	"github.com/hugh/funnel-builder/pkg/config"
)

type captureMailer struct {
	sent []notify.Message
}

func (c *captureMailer) Send(_ context.Context, msg notify.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

func createInvitation(t *testing.T, ts *testutil.TestSetup, expires time.Time) *models.Invitation {
	t.Helper()
	inv := &models.Invitation{
		WorkspaceID: ts.Workspace.ID,
		Email:       "guest@example.com",
		Role:        access.RoleEditor,
		Token:       "tok-" + time.Now().Format("150405.000000000"),
		InvitedBy:   ts.Owner.ID,
		ExpiresAt:   expires,
	}
	require.NoError(t, ts.DB.Create(inv).Error)
	return inv
}

func TestInvitations_Send(t *testing.T) {
	ts := testutil.NewTestContext(t)
	mailer := &captureMailer{}
	n := notify.NewInvitations(ts.DB, mailer, "https://app.example.com/", testutil.Logger())

	inv := createInvitation(t, ts, time.Now().Add(24*time.Hour))
	require.NoError(t, n.Send(testutil.TestContext(t), inv.ID))

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "guest@example.com", msg.To)
	assert.Equal(t, "You're invited to Test Workspace", msg.Subject)
	assert.Contains(t, msg.TextBody, "https://app.example.com/invitations/"+inv.Token)
	assert.Contains(t, msg.TextBody, "Test User invited you")
	assert.Contains(t, msg.TextBody, "as editor")
	assert.Contains(t, msg.HTMLBody, `<strong>Test Workspace</strong>`)
}

func TestInvitations_SendEscapesHTML(t *testing.T) {
	ts := testutil.NewTestContext(t)
	require.NoError(t, ts.DB.Model(ts.Workspace).Update("name", "<b>Evil</b>").Error)
	mailer := &captureMailer{}
	n := notify.NewInvitations(ts.DB, mailer, "https://app.example.com", testutil.Logger())

	inv := createInvitation(t, ts, time.Now().Add(time.Hour))
	require.NoError(t, n.Send(testutil.TestContext(t), inv.ID))

	require.Len(t, mailer.sent, 1)
	assert.NotContains(t, mailer.sent[0].HTMLBody, "<b>Evil</b>")
	assert.Contains(t, mailer.sent[0].HTMLBody, "&lt;b&gt;Evil&lt;/b&gt;")
}

func TestInvitations_SendSkipsStale(t *testing.T) {
	ts := testutil.NewTestContext(t)
	mailer := &captureMailer{}
	n := notify.NewInvitations(ts.DB, mailer, "https://app.example.com", testutil.Logger())
	ctx := testutil.TestContext(t)

	expired := createInvitation(t, ts, time.Now().Add(-time.Hour))
	assert.ErrorIs(t, n.Send(ctx, expired.ID), notify.ErrInvitationGone)

	accepted := createInvitation(t, ts, time.Now().Add(time.Hour))
	now := time.Now()
	require.NoError(t, ts.DB.Model(accepted).Update("accepted_at", &now).Error)
	assert.ErrorIs(t, n.Send(ctx, accepted.ID), notify.ErrInvitationGone)

	assert.ErrorIs(t, n.Send(ctx, 9999), notify.ErrInvitationGone)
	assert.Empty(t, mailer.sent)
}

func TestNewMailer_FallsBackToLog(t *testing.T) {
	m := notify.NewMailer(config.SMTPConfig{}, testutil.Logger())
	_, ok := m.(*notify.LogMailer)
	assert.True(t, ok)
	assert.NoError(t, m.Send(context.Background(), notify.Message{To: "a@example.com", Subject: "hi"}))
}

func TestSMTPMailer_NoRecipient(t *testing.T) {
	m := notify.NewMailer(config.SMTPConfig{Host: "localhost", Port: 1025, From: "test@funnels.local"}, testutil.Logger())
	assert.Error(t, m.Send(context.Background(), notify.Message{Subject: "hi"}))
}

func TestSMTPMailer_Delivery(t *testing.T) {
	m := notify.NewMailer(config.SMTPConfig{Host: "localhost", Port: 1025, From: "test@funnels.local"}, testutil.Logger())
	err := m.Send(context.Background(), notify.Message{
		To:       "recipient@example.com",
		Subject:  "Subject\r\nBcc: attacker@example.com",
		TextBody: "text",
		HTMLBody: "<p>html</p>",
	})
	// Mailpit on localhost:1025 is optional.
	if err != nil {
		t.Skipf("SMTP not available: %v", err)
	}
}
