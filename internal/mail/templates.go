package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

const (
	resetCodeSubject = "Your Password Reset Code"
	resetLinkSubject = "Reset your password"
)

const resetCodeText = `Hello {{.Username}},

Your password reset code is: {{.Code}}

The code expires in {{.ExpiresInMinutes}} minutes. If you did not ask for a reset, ignore this email.
`

const resetCodeHTML = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <p>Hello {{.Username}},</p>
  <p>Your password reset code is:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>The code expires in {{.ExpiresInMinutes}} minutes. If you did not ask for a reset, ignore this email.</p>
</body>
</html>
`

const resetLinkText = `Hello {{.Username}},

Follow this link to choose a new password:

{{.Link}}

The link expires in {{.ExpiresInHours}} hours and stops working once it has been used.
`

const resetLinkHTML = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <p>Hello {{.Username}},</p>
  <p><a href="{{.Link}}">Choose a new password</a></p>
  <p>The link expires in {{.ExpiresInHours}} hours and stops working once it has been used.</p>
</body>
</html>
`

type ResetCodeData struct {
	Username         string
	Code             string
	ExpiresInMinutes int
}

type ResetLinkData struct {
	Username       string
	Link           string
	ExpiresInHours int
}

// Renderer turns reset data into ready-to-send messages.
type Renderer struct {
	codeText *texttemplate.Template
	codeHTML *htmltemplate.Template
	linkText *texttemplate.Template
	linkHTML *htmltemplate.Template
}

func NewRenderer() (*Renderer, error) {
	codeText, err := texttemplate.New("reset_code.txt").Parse(resetCodeText)
	if err != nil {
		return nil, fmt.Errorf("parse reset code text template: %w", err)
	}
	codeHTML, err := htmltemplate.New("reset_code.html").Parse(resetCodeHTML)
	if err != nil {
		return nil, fmt.Errorf("parse reset code html template: %w", err)
	}
	linkText, err := texttemplate.New("reset_link.txt").Parse(resetLinkText)
	if err != nil {
		return nil, fmt.Errorf("parse reset link text template: %w", err)
	}
	linkHTML, err := htmltemplate.New("reset_link.html").Parse(resetLinkHTML)
	if err != nil {
		return nil, fmt.Errorf("parse reset link html template: %w", err)
	}

	return &Renderer{
		codeText: codeText,
		codeHTML: codeHTML,
		linkText: linkText,
		linkHTML: linkHTML,
	}, nil
}

func (r *Renderer) ResetCode(to string, data ResetCodeData) (Message, error) {
	var text, html bytes.Buffer
	if err := r.codeText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render reset code text: %w", err)
	}
	if err := r.codeHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render reset code html: %w", err)
	}

	return Message{To: to, Subject: resetCodeSubject, Text: text.String(), HTML: html.String()}, nil
}

func (r *Renderer) ResetLink(to string, data ResetLinkData) (Message, error) {
	var text, html bytes.Buffer
	if err := r.linkText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render reset link text: %w", err)
	}
	if err := r.linkHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render reset link html: %w", err)
	}

	return Message{To: to, Subject: resetLinkSubject, Text: text.String(), HTML: html.String()}, nil
}
