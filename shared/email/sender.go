package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/yash21saraf/revival.ai/internal/models"
	"github.com/yash21saraf/revival.ai/shared/config"
)

//go:embed templates/report.html
var templates embed.FS

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	config *config.EmailConfig
	send   sendFunc
}

func NewSender(cfg *config.EmailConfig) *Sender {
	return &Sender{
		config: cfg,
		send:   smtp.SendMail,
	}
}

// SendReport mails a finalized revival report.
func (s *Sender) SendReport(report *models.Report) error {
	if report == nil || report.Strategy == nil {
		return fmt.Errorf("report cannot be nil")
	}

	title := models.DefaultVideoMetadata().Title
	if md := report.Strategy.OriginalVideoMetadata; md != nil && md.Title != "" {
		title = md.Title
	}
	subject := fmt.Sprintf("Revival Report - %s (%d outdated items)", title, len(report.Strategy.OutdatedItems))

	body, err := s.generateEmailBody(report)
	if err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}

	return s.SendHTML(subject, body)
}

// SendHTML sends an email with custom HTML content
func (s *Sender) SendHTML(subject, htmlBody string) error {
	return s.sendViaSMTP(subject, htmlBody)
}

func (s *Sender) sendViaSMTP(subject, body string) error {
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPServer)

	to := []string{s.config.ToEmail}
	msg := []byte(fmt.Sprintf(`To: %s
From: %s
Subject: %s
MIME-Version: 1.0
Content-Type: text/html; charset=UTF-8

%s`, s.config.ToEmail, s.config.FromEmail, subject, body))

	addr := fmt.Sprintf("%s:%d", s.config.SMTPServer, s.config.SMTPPort)
	if err := s.send(addr, auth, s.config.FromEmail, to, msg); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", addr, err)
	}
	return nil
}

func (s *Sender) generateEmailBody(report *models.Report) (string, error) {
	tmpl, err := template.New("report.html").Funcs(template.FuncMap{
		"deepLink": func(seg models.Segment) string {
			if report.VideoID == "" {
				return report.VideoURL
			}
			return seg.DeepLink(report.VideoID)
		},
		"needsUpdate": func(seg models.Segment) bool {
			return seg.NeedsUpdate != nil && *seg.NeedsUpdate
		},
	}).ParseFS(templates, "templates/report.html")
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, report); err != nil {
		return "", err
	}

	return buf.String(), nil
}
