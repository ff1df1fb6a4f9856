package notify

import (
	"context"
	"fmt"
	"html/template"
	"strings"
)

var loginGrantTmpl = template.Must(template.New("login_grant").Parse(`<h3>Hi</h3>
<p>Page Gate has granted a new login.</p>
<ul>
    <li>Source: {{.Issuer}}, {{.Country}}, {{.City}}</li>
    <li>User: {{.Mail}}</li>
    <li>Admin: {{.Admin}}</li>
    <li>Private access: {{.PrivateAccess}}</li>
    <li>Time: {{.Time}}</li>
</ul>
<p>If you did not trigger this login, please go ahead and shut down the environment.</p>
`))

var userActivatedTmpl = template.Must(template.New("user_activated").Parse(`<h3>Hi</h3>
<p>The account {{.Mail}} activated itself at {{.Time}}.</p>
`))

var contactTmpl = template.Must(template.New("contact_request").Parse(`<h3>New contact request</h3>
<p>From: {{.Mail}}</p>
<p>{{.Message}}</p>
`))

var invitationTmpl = template.Must(template.New("page_invitation").Parse(`<h3>Welcome</h3>
<p>An account for {{.Mail}} was created on Page Gate.</p>
{{if .Admin}}<p>The account has administrative access.</p>{{end}}
<p>Log in and activate it with a password of your own.</p>
`))

func (q *Queue) render(e Event) (subject, body string, err error) {
	var buf strings.Builder
	switch e.Kind {
	case KindLoginGrant:
		if e.Token == nil {
			return "", "", fmt.Errorf("login grant event %s without token", e.ID)
		}
		country, city := "unknown", "unknown"
		if q.resolver != nil {
			if loc, ok := q.resolver.Resolve(context.Background(), e.Token.Issuer); ok {
				country, city = loc.Country, loc.City
			}
		}
		err = loginGrantTmpl.Execute(&buf, map[string]any{
			"Issuer":        e.Token.Issuer,
			"Country":       country,
			"City":          city,
			"Mail":          e.Token.UserMail,
			"Admin":         e.Token.Admin,
			"PrivateAccess": e.Token.PrivateAccess,
			"Time":          e.Token.IssuedAt.Format("02.01.2006 15:04:05"),
		})
		return "Page Gate: login granted", buf.String(), err

	case KindUserActivated:
		if e.Activation == nil {
			return "", "", fmt.Errorf("activation event %s without payload", e.ID)
		}
		err = userActivatedTmpl.Execute(&buf, map[string]any{
			"Mail": e.Activation.Mail,
			"Time": e.Activation.ActivatedAt.Format("02.01.2006 15:04:05"),
		})
		return "Page Gate: user activated", buf.String(), err

	case KindContactRequest:
		if e.Contact == nil {
			return "", "", fmt.Errorf("contact event %s without payload", e.ID)
		}
		err = contactTmpl.Execute(&buf, map[string]any{
			"Mail":    e.Contact.Mail,
			"Message": e.Contact.Message,
		})
		return "Page Gate: contact request", buf.String(), err

	case KindPageInvitation:
		if e.Invitation == nil {
			return "", "", fmt.Errorf("invitation event %s without payload", e.ID)
		}
		err = invitationTmpl.Execute(&buf, map[string]any{
			"Mail":  e.Invitation.Mail,
			"Admin": e.Invitation.Admin,
		})
		return "Page Gate: you were invited", buf.String(), err

	default:
		return "", "", fmt.Errorf("unknown notification kind %q", e.Kind)
	}
}
