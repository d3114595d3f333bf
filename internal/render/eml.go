package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"time"
)

// BuildDigestEML assembles an RFC 5322 multipart/alternative message carrying
// the digest: a short plain-text part plus the base64-encoded HTML body. The
// returned bytes are the complete message, ready to write as digest.eml or to
// hand to an SMTP session.
func BuildDigestEML(subject, htmlBody, fromEmail, toEmail string) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	plain, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`text/plain; charset="utf-8"`},
		"Content-Transfer-Encoding": {"7bit"},
	})
	if err != nil {
		return nil, fmt.Errorf("building plain part: %w", err)
	}
	fmt.Fprint(plain, "This digest contains an HTML body. Open in an email client to view formatting.\r\n")

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`text/html; charset="utf-8"`},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, fmt.Errorf("building html part: %w", err)
	}
	if _, err := htmlPart.Write(wrapBase64([]byte(htmlBody))); err != nil {
		return nil, fmt.Errorf("encoding html part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing message body: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", fromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", toEmail)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprint(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", writer.Boundary())
	fmt.Fprint(&msg, "\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// wrapBase64 encodes data and folds the output at 76 characters per RFC 2045.
func wrapBase64(data []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)
	var out bytes.Buffer
	for len(encoded) > 0 {
		chunk := encoded
		if len(chunk) > 76 {
			chunk = chunk[:76]
		}
		out.WriteString(chunk)
		out.WriteString("\r\n")
		encoded = encoded[len(chunk):]
	}
	return out.Bytes()
}

// WriteEMLFile writes the message to disk, creating parent directories.
func WriteEMLFile(path string, message []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating eml dir: %w", err)
	}
	return os.WriteFile(path, message, 0644)
}
