package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/database/models"
)

var ErrInvitationGone = errors.New("invitation no longer pending")

const invitationText = `Hi,

{{.Inviter}} invited you to join the workspace "{{.Workspace}}" as {{.Role}}.

Accept the invitation here:
{{.AcceptURL}}

The link expires on {{.Expires}}.
`

const invitationHTML = `<p>Hi,</p>
<p>{{.Inviter}} invited you to join the workspace <strong>{{.Workspace}}</strong> as {{.Role}}.</p>
<p><a href="{{.AcceptURL}}">Accept the invitation</a></p>
<p>The link expires on {{.Expires}}.</p>
`

var (
	invitationTextTmpl = texttemplate.Must(texttemplate.New("invitation.txt").Parse(invitationText))
	invitationHTMLTmpl = htmltemplate.Must(htmltemplate.New("invitation.html").Parse(invitationHTML))
)

type invitationData struct {
	Inviter   string
	Workspace string
	Role      string
	AcceptURL string
	Expires   string
}

// Invitations mails workspace invitations.
type Invitations struct {
	db        *gorm.DB
	mailer    Mailer
	publicURL string
	logger    *slog.Logger
}

func NewInvitations(db *gorm.DB, mailer Mailer, publicURL string, logger *slog.Logger) *Invitations {
	return &Invitations{
		db:        db,
		mailer:    mailer,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}
}

// Send mails the invitation. Accepted, expired or deleted invitations
// return ErrInvitationGone.
func (n *Invitations) Send(ctx context.Context, invitationID int64) error {
	db := n.db.WithContext(ctx)

	var inv models.Invitation
	if err := db.Preload("Workspace").First(&inv, invitationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvitationGone
		}
		return fmt.Errorf("loading invitation: %w", err)
	}
	if inv.AcceptedAt != nil || time.Now().After(inv.ExpiresAt) || inv.Workspace == nil {
		return ErrInvitationGone
	}

	inviter := "A teammate"
	var user models.User
	if err := db.Select("id", "name", "email").First(&user, inv.InvitedBy).Error; err == nil {
		inviter = user.Name
		if inviter == "" {
			inviter = user.Email
		}
	}

	data := invitationData{
		Inviter:   inviter,
		Workspace: inv.Workspace.Name,
		Role:      strings.ToLower(string(inv.Role)),
		AcceptURL: n.publicURL + "/invitations/" + url.PathEscape(inv.Token),
		Expires:   inv.ExpiresAt.UTC().Format("January 2, 2006"),
	}

	var text, html bytes.Buffer
	if err := invitationTextTmpl.Execute(&text, data); err != nil {
		return fmt.Errorf("rendering invitation: %w", err)
	}
	if err := invitationHTMLTmpl.Execute(&html, data); err != nil {
		return fmt.Errorf("rendering invitation: %w", err)
	}

	msg := Message{
		To:       inv.Email,
		Subject:  fmt.Sprintf("You're invited to %s", inv.Workspace.Name),
		TextBody: text.String(),
		HTMLBody: html.String(),
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		return err
	}

	n.logger.Info("invitation mailed", "invitation_id", inv.ID, "workspace_id", inv.WorkspaceID)
	return nil
}
