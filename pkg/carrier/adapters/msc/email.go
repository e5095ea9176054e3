package msc

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// parseNotification extracts records from one MSC status email. The body is
// the first text/plain part, read as key: value lines. Each record carries
// the message id and received time as provenance.
func parseNotification(raw []byte) ([]models.RawRecord, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed email")
	}

	text, err := plainText(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, err
	}

	records := base.ParseKeyValueText(strings.ReplaceAll(text, "\r\n", "\n"))

	messageID := strings.Trim(msg.Header.Get("Message-Id"), "<>")
	var received string
	if date, err := msg.Header.Date(); err == nil {
		received = date.UTC().Format(time.RFC3339)
	}
	for _, rec := range records {
		if messageID != "" {
			rec["messageId"] = messageID
		}
		if received != "" {
			rec["receivedAt"] = received
		}
		if subject := msg.Header.Get("Subject"); subject != "" {
			rec["subject"] = subject
		}
	}
	return records, nil
}

func plainText(contentType, encoding string, body io.Reader) (string, error) {
	mediaType := "text/plain"
	var params map[string]string
	if contentType != "" {
		var err error
		mediaType, params, err = mime.ParseMediaType(contentType)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeData, "invalid Content-Type")
		}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return "", errors.New(errors.ErrorTypeData, "email has no text/plain part")
			}
			if err != nil {
				return "", errors.Wrap(err, errors.ErrorTypeData, "malformed multipart email")
			}
			// NextPart already removes quoted-printable encoding.
			text, err := plainText(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err == nil {
				return text, nil
			}
		}
	}

	if mediaType != "text/plain" {
		return "", errors.Newf(errors.ErrorTypeData, "unsupported email body %s", mediaType)
	}

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, body)
	}

	data, err := io.ReadAll(io.LimitReader(body, maxMessageSize))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to decode email body")
	}
	return string(data), nil
}
