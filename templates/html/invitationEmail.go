package templates

import (
	"fmt"
	"html"
)

// roleLabels maps internal role values to what the email shows
var roleLabels = map[string]string{
	"super_admin": "Super Admin",
	"admin":       "Admin",
	"viewer":      "Viewer",
}

// RenderInvitationEmail generates branded HTML for the admin invitation email.
// acceptLink already embeds the bearer token; invitedByName is the display
// name captured when the invitation was created.
func RenderInvitationEmail(acceptLink, role, invitedByName string) string {
	label, ok := roleLabels[role]
	if !ok {
		label = role
	}

	return fmt.Sprintf(`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, minimum-scale=1, maximum-scale=1">
  <title>You're invited to SwiftHaul Admin</title>
  <style type="text/css">
    body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 0; background-color: #f4f6f8; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; }
    .header { background: linear-gradient(135deg, #0f3460 0%%, #16537e 100%%); padding: 40px 30px; text-align: center; }
    .header h1 { color: #fff; margin: 0; font-size: 24px; font-weight: 700; }
    .content { padding: 40px 30px; color: #1f2937; line-height: 1.6; font-size: 15px; }
    .button { background: #16537e; color: #ffffff; padding: 14px 28px; border-radius: 6px; text-decoration: none; font-weight: 600; display: inline-block; }
    .link { word-break: break-all; }
    .footer { padding: 30px; text-align: center; color: #6b7280; font-size: 12px; border-top: 1px solid rgba(0,0,0,0.08); }
    .footer a { color: #16537e; text-decoration: none; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>You're invited to SwiftHaul Admin</h1>
    </div>
    <div class="content">
      <p>Hello,</p>
      <p><strong>%s</strong> has invited you to join the SwiftHaul Logistics back office as a <strong>%s</strong>.</p>
      <p style="text-align:center;margin:30px 0;">
        <a href="%s" class="button">Accept Invitation</a>
      </p>
      <p>This invitation expires in 7 days. If the button does not work, copy this link into your browser:</p>
      <p class="link"><a href="%s">%s</a></p>
      <p>If you were not expecting this invitation, you can safely ignore this email.</p>
    </div>
    <div class="footer">
      <p>&copy; SwiftHaul Logistics | <a href="https://www.swifthaul-logistics.com">swifthaul-logistics.com</a></p>
      <p><a href="https://www.swifthaul-logistics.com/contact">Contact Support</a></p>
    </div>
  </div>
</body>
</html>`,
		html.EscapeString(invitedByName),
		html.EscapeString(label),
		acceptLink, acceptLink, acceptLink)
}
