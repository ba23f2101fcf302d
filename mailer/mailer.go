// Package mailer delivers admin invitation emails. The invitation core only
// depends on the Mailer interface; delivery retries, bounces and content are
// the transport's problem, the core just surfaces the boolean outcome.
package mailer

import (
	"fmt"
	"os"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	templates "github.com/swifthaul/swifthaul-api/templates/html"
)

// SendResult reports the outcome of a single send attempt. Error is surfaced
// verbatim to the caller that triggered the send.
type SendResult struct {
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// Mailer sends the invitation email containing the accept link
type Mailer interface {
	SendInvitation(email, token, role, invitedByName string) SendResult
}

// SendGridMailer sends invitation emails through SendGrid
type SendGridMailer struct {
	BaseURL string
}

// NewSendGridMailer builds a mailer that links back to baseURL for the
// accept page
func NewSendGridMailer(baseURL string) *SendGridMailer {
	return &SendGridMailer{BaseURL: baseURL}
}

// BuildAcceptLink returns the invitee-facing URL embedding the token
func (m *SendGridMailer) BuildAcceptLink(token string) string {
	base := strings.TrimRight(m.BaseURL, "/")
	if base == "" {
		base = "https://www.swifthaul-logistics.com"
	}
	return base + "/admin/accept-invitation?token=" + token
}

// SendInvitation delivers the invitation email. A failed send is reported,
// never retried here; the admin UI offers a manual resend instead.
func (m *SendGridMailer) SendInvitation(email, token, role, invitedByName string) SendResult {
	apiKey := os.Getenv("SENDGRID_API_KEY")
	if apiKey == "" {
		zap.S().Errorw("SENDGRID_API_KEY not set, cannot send invitation email", "email", email)
		return SendResult{Sent: false, Error: "email transport not configured"}
	}

	acceptLink := m.BuildAcceptLink(token)

	from := mail.NewEmail("SwiftHaul Logistics", "no-reply@swifthaul-logistics.com")
	subject := "You're invited to the SwiftHaul admin console"
	to := mail.NewEmail("", email)
	plain := fmt.Sprintf(`Hello,

%s has invited you to join the SwiftHaul Logistics back office as a %s.

Accept the invitation using this link:
%s

This invitation expires in 7 days. If you were not expecting it, you can ignore this email.

SwiftHaul Logistics`, invitedByName, role, acceptLink)
	html := templates.RenderInvitationEmail(acceptLink, role, invitedByName)

	msg := mail.NewSingleEmail(from, subject, to, plain, html)
	client := sendgrid.NewSendClient(apiKey)
	response, err := client.Send(msg)
	if err != nil {
		zap.S().Errorw("failed to send invitation email", "email", email, "error", err)
		return SendResult{Sent: false, Error: err.Error()}
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		zap.S().Warnw("invitation email rejected by transport",
			"email", email, "statusCode", response.StatusCode, "body", response.Body)
		return SendResult{Sent: false, Error: fmt.Sprintf("email transport returned status %d", response.StatusCode)}
	}

	zap.S().Infow("invitation email sent", "email", email, "statusCode", response.StatusCode)
	return SendResult{Sent: true}
}
