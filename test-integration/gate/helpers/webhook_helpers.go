package helpers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/onsi/gomega"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/api"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/webhook"
)

// UserEvent builds a webhook payload for the given event type and user
func UserEvent(eventType, id, email, firstName string) []byte {
	data := map[string]any{"id": id}
	if email != "" {
		data["email_addresses"] = []map[string]string{{"email_address": email}}
	}
	if firstName != "" {
		data["first_name"] = firstName
	}

	body, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return body
}

// WebhookRequest builds a signed delivery of body. A non-empty secret
// overrides WebhookSecret.
func WebhookRequest(body []byte, secret string) *http.Request {
	if secret == "" {
		secret = WebhookSecret
	}
	verifier, err := webhook.NewVerifier(secret)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	id := fmt.Sprintf("msg_%d", time.Now().UnixNano())
	sent := time.Now()

	req, err := http.NewRequest(http.MethodPost, api.WebhookPath, bytes.NewReader(body))
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.HeaderID, id)
	req.Header.Set(webhook.HeaderTimestamp, fmt.Sprintf("%d", sent.Unix()))
	req.Header.Set(webhook.HeaderSignature, verifier.Sign(id, sent, body))
	return req
}
