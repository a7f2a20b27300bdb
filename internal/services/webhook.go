package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bloodlink-dev/bloodlink/internal/apperrors"
)

// WebhookNotifier posts alert notifications to an SMS-gateway bridge. Each
// request carries one recipient; the gateway fans out to the donor's phone.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	Recipient string       `json:"recipient"`
	Name      string       `json:"name"`
	Message   string       `json:"message"`
	Alert     AlertSummary `json:"alert"`
}

func (n *WebhookNotifier) Send(ctx context.Context, contact Contact, summary AlertSummary) (DeliveryResult, error) {
	url := n.URL
	if contact.Webhook != "" {
		url = contact.Webhook
	}
	if url == "" {
		return DeliveryResult{}, apperrors.Dependency(false, "no webhook URL configured", nil)
	}

	message := fmt.Sprintf("%s urgently needs %d unit(s) of %s blood, %.1f km from you. Open the app to respond.",
		summary.HospitalName, summary.UnitsRequired, summary.BloodGroup, summary.DistanceKm)

	body, err := json.Marshal(webhookPayload{
		Recipient: contact.Phone,
		Name:      contact.Name,
		Message:   message,
		Alert:     summary,
	})
	if err != nil {
		return DeliveryResult{}, apperrors.Dependency(false, "marshal webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return DeliveryResult{}, apperrors.Dependency(false, "build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return DeliveryResult{}, apperrors.Dependency(true, "send webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return DeliveryResult{}, apperrors.Dependency(true, fmt.Sprintf("webhook returned status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return DeliveryResult{}, apperrors.Dependency(false, fmt.Sprintf("webhook returned status %d", resp.StatusCode), nil)
	}

	return DeliveryResult{Delivered: true, Detail: resp.Status}, nil
}
