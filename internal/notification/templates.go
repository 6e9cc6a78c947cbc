// Package notification renders and dispatches OTP emails, either through the
// Kafka email queue or directly through a mailer.
package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/mailer"
)

// OTPData is the template input for OTP emails.
type OTPData struct {
	AppName   string
	Username  string
	Code      string
	ExpiresIn int // minutes
}

type otpTemplate struct {
	subject string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

const verificationHTML = `<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<p>Hi {{.Username}},</p>
<p>Welcome to {{.AppName}}. Use the code below to verify your email address:</p>
<p style="font-size:28px;letter-spacing:6px"><strong>{{.Code}}</strong></p>
<p>The code expires in {{.ExpiresIn}} minutes.</p>
</body></html>`

const verificationText = `Hi {{.Username}},

Welcome to {{.AppName}}. Your verification code is {{.Code}}.
It expires in {{.ExpiresIn}} minutes.
`

const resetHTML = `<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<p>Hi {{.Username}},</p>
<p>We received a request to reset your {{.AppName}} password. Your code is:</p>
<p style="font-size:28px;letter-spacing:6px"><strong>{{.Code}}</strong></p>
<p>The code expires in {{.ExpiresIn}} minutes. If you did not ask for this, ignore this email.</p>
</body></html>`

const resetText = `Hi {{.Username}},

We received a request to reset your {{.AppName}} password. Your code is {{.Code}}.
It expires in {{.ExpiresIn}} minutes. If you did not ask for this, ignore this email.
`

// Renderer turns OTP data into email messages, one template per OTP type.
type Renderer struct {
	appName   string
	expiresIn time.Duration
	templates map[domain.OTPType]otpTemplate
}

func NewRenderer(appName string, otpTTL time.Duration) *Renderer {
	return &Renderer{
		appName:   appName,
		expiresIn: otpTTL,
		templates: map[domain.OTPType]otpTemplate{
			domain.OTPEmailVerification: {
				subject: "Verify your email",
				html:    htmltemplate.Must(htmltemplate.New("verification.html").Parse(verificationHTML)),
				text:    texttemplate.Must(texttemplate.New("verification.txt").Parse(verificationText)),
			},
			domain.OTPForgotPassword: {
				subject: "Reset your password",
				html:    htmltemplate.Must(htmltemplate.New("reset.html").Parse(resetHTML)),
				text:    texttemplate.Must(texttemplate.New("reset.txt").Parse(resetText)),
			},
		},
	}
}

// RenderOTP builds the email for an OTP of the given type.
func (r *Renderer) RenderOTP(typ domain.OTPType, to, username, code string) (mailer.Message, error) {
	tpl, ok := r.templates[typ]
	if !ok {
		return mailer.Message{}, fmt.Errorf("no email template for otp type %q", typ)
	}
	if username == "" {
		username = "there"
	}
	data := OTPData{
		AppName:   r.appName,
		Username:  username,
		Code:      code,
		ExpiresIn: int(r.expiresIn / time.Minute),
	}

	var html, text bytes.Buffer
	if err := tpl.html.Execute(&html, data); err != nil {
		return mailer.Message{}, fmt.Errorf("render %s html: %w", typ, err)
	}
	if err := tpl.text.Execute(&text, data); err != nil {
		return mailer.Message{}, fmt.Errorf("render %s text: %w", typ, err)
	}

	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("%s - %s", r.appName, tpl.subject),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
