package pipeline

import (
	"bytes"
	"strings"

	"github.com/jhillyerd/enmime"
)

type EmailAttachment struct {
	Name    string
	Content []byte
}

type ParsedEmail struct {
	Subject     string
	Text        string
	HTML        string
	Attachments []EmailAttachment
}

// ReadEmail parses a raw RFC 5322 message into its text, HTML body and
// document attachments. Inline images and signatures are dropped.
func ReadEmail(raw []byte) (ParsedEmail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return ParsedEmail{}, err
	}

	out := ParsedEmail{
		Subject: env.GetHeader("Subject"),
		Text:    env.Text,
		HTML:    env.HTML,
	}

	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			name = "attachment"
		}
		out.Attachments = append(out.Attachments, EmailAttachment{Name: name, Content: att.Content})
	}

	return out, nil
}

// AttachmentKind reports the document kind for a parseable attachment,
// false for everything else.
func AttachmentKind(filename string) (string, bool) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xls"):
		return "xlsx", true
	case strings.HasSuffix(lower, ".pdf"):
		return "pdf", true
	}
	return "", false
}
