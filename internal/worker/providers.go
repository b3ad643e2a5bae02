package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

type Message struct {
	To             string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

func NewMailer(kind, webhookURL string) Mailer {
	switch kind {
	case "", "stub", "log":
		return logMailer{}
	case "noop":
		return noopMailer{}
	case "fail":
		return failMailer{}
	case "webhook":
		if webhookURL == "" {
			return logMailer{}
		}
		return webhookMailer{url: webhookURL}
	default:
		if strings.HasPrefix(kind, "http://") || strings.HasPrefix(kind, "https://") {
			return webhookMailer{url: kind}
		}
		return logMailer{}
	}
}

type logMailer struct{}

func (logMailer) Send(ctx context.Context, msg Message) error {
	if msg.AttachmentName != "" {
		log.Printf("mail to %s: %s (attachment %s, %d bytes)", msg.To, msg.Subject, msg.AttachmentName, len(msg.Attachment))
		return nil
	}
	log.Printf("mail to %s: %s", msg.To, msg.Subject)
	return nil
}

type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, msg Message) error {
	return nil
}

type failMailer struct{}

func (failMailer) Send(ctx context.Context, msg Message) error {
	return errors.New("mailer failure")
}

type webhookMailer struct {
	url string
}

func (m webhookMailer) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Body,
	}
	if msg.AttachmentName != "" {
		payload["attachment_name"] = msg.AttachmentName
		payload["attachment"] = base64.StdEncoding.EncodeToString(msg.Attachment)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("mail webhook returned %d", resp.StatusCode)
	}
	return nil
}
