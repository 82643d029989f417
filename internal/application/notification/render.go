package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"math"
	texttemplate "text/template"
	"time"
)

// Subject of every OTP email.
const Subject = "Your OTP Verification Code"

const (
	htmlTemplateName = "otp.html"
	textTemplateName = "otp.txt"
)

//go:embed templates/*
var defaultTemplates embed.FS

// TemplateSource supplies template overrides by name.
type TemplateSource interface {
	Load(ctx context.Context, name string) (string, error)
}

// Renderer turns a notice into an email with text and HTML bodies.
type Renderer struct {
	appName string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

type templateData struct {
	AppName string
	Code    string
	Minutes int
}

// NewRenderer parses the built-in templates, preferring overrides from src
// when it is non-nil. An override that fails to load or parse is logged and
// the built-in template is used instead.
func NewRenderer(ctx context.Context, appName string, src TemplateSource) (*Renderer, error) {
	r := &Renderer{appName: appName}

	htmlSrc, err := source(ctx, src, htmlTemplateName)
	if err != nil {
		return nil, err
	}
	if r.html, err = htmltemplate.New(htmlTemplateName).Parse(htmlSrc); err != nil {
		slog.WarnContext(ctx, "override template invalid, using built-in", "template", htmlTemplateName, "err", err)
		r.html = htmltemplate.Must(htmltemplate.ParseFS(defaultTemplates, "templates/"+htmlTemplateName))
	}

	textSrc, err := source(ctx, src, textTemplateName)
	if err != nil {
		return nil, err
	}
	if r.text, err = texttemplate.New(textTemplateName).Parse(textSrc); err != nil {
		slog.WarnContext(ctx, "override template invalid, using built-in", "template", textTemplateName, "err", err)
		r.text = texttemplate.Must(texttemplate.ParseFS(defaultTemplates, "templates/"+textTemplateName))
	}
	return r, nil
}

func source(ctx context.Context, src TemplateSource, name string) (string, error) {
	if src != nil {
		s, err := src.Load(ctx, name)
		if err == nil {
			slog.InfoContext(ctx, "loaded template override", "template", name)
			return s, nil
		}
		slog.WarnContext(ctx, "template override unavailable, using built-in", "template", name, "err", err)
	}
	b, err := defaultTemplates.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("read built-in template %s: %w", name, err)
	}
	return string(b), nil
}

// Render produces the email for n.
func (r *Renderer) Render(n OTPNotice) (Message, error) {
	data := templateData{AppName: r.appName, Code: n.Code, Minutes: minutes(n.Window)}

	var html, text bytes.Buffer
	if err := r.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	if err := r.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	return Message{
		To:       n.To,
		Subject:  Subject,
		TextBody: text.String(),
		HTMLBody: html.String(),
		Code:     n.Code,
		Window:   n.Window,
	}, nil
}

// minutes rounds the window up so a 90s window reads as 2 minutes.
func minutes(window time.Duration) int {
	m := int(math.Ceil(window.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
