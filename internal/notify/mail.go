// Package notify mails finished paging lists to branch staff.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"
)

// Attachment is a file carried by a Message
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one outgoing mail
type Message struct {
	From        string
	To          []string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer delivers messages through an SMTP relay
type Mailer struct {
	addr string
	send sendFunc
	now  func() time.Time
}

// NewMailer sends through host:port without authentication, like a local relay
func NewMailer(host string, port int) *Mailer {
	return &Mailer{
		addr: host + ":" + strconv.Itoa(port),
		send: smtp.SendMail,
		now:  time.Now,
	}
}

// Send delivers msg once; failures are returned to the caller, never retried
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("message has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := m.Encode(msg)
	if err != nil {
		return err
	}
	if err := m.send(m.addr, nil, msg.From, msg.To, body); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", strings.Join(msg.To, ", "), err)
	}
	return nil
}

// Encode renders msg as multipart/mixed with a text and HTML alternative body
func (m *Mailer) Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	header := []string{
		"From: " + msg.From,
		"To: " + strings.Join(msg.To, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + m.now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=" + mixed.Boundary(),
	}
	buf.WriteString(strings.Join(header, "\r\n") + "\r\n\r\n")

	if err := writeAlternative(mixed, msg.Text, msg.HTML); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		if err := writeAttachment(mixed, a); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAlternative(mixed *multipart.Writer, text, html string) error {
	var inner bytes.Buffer
	alt := multipart.NewWriter(&inner)

	for _, part := range []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", html},
	} {
		if part.body == "" {
			continue
		}
		w, err := alt.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return fmt.Errorf("failed to create body part: %w", err)
		}
		if _, err := io.WriteString(w, part.body); err != nil {
			return fmt.Errorf("failed to write body part: %w", err)
		}
	}
	if err := alt.Close(); err != nil {
		return fmt.Errorf("failed to finish body: %w", err)
	}

	w, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"multipart/alternative; boundary=" + alt.Boundary()},
	})
	if err != nil {
		return fmt.Errorf("failed to create body: %w", err)
	}
	_, err = w.Write(inner.Bytes())
	return err
}

func writeAttachment(mixed *multipart.Writer, a Attachment) error {
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})},
	})
	if err != nil {
		return fmt.Errorf("failed to attach %s: %w", a.Filename, err)
	}

	encoded := base64.StdEncoding.EncodeToString(a.Data)
	for len(encoded) > 76 {
		if _, err := io.WriteString(w, encoded[:76]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err = io.WriteString(w, encoded+"\r\n")
	return err
}

// LoadRecipients reads "Branch,addr1|addr2" rows into a branch to addresses table
func LoadRecipients(path string) (map[string][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipients file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse recipients file %s: %w", path, err)
	}

	recipients := make(map[string][]string, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		var addrs []string
		for _, a := range strings.Split(row[1], "|") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
		if len(addrs) > 0 {
			recipients[strings.TrimSpace(row[0])] = addrs
		}
	}
	return recipients, nil
}
