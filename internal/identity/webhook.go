package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	svix "github.com/svix/svix-webhooks/go"
)

// Webhook event types the server reacts to.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// Webhook signature headers.
const (
	HeaderWebhookID        = "svix-id"
	HeaderWebhookTimestamp = "svix-timestamp"
	HeaderWebhookSignature = "svix-signature"
)

// DefaultBio is written to users created from a webhook.
const DefaultBio = "Please update your profile."

var (
	ErrMissingWebhookHeaders = errors.New("missing webhook signature headers")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
)

type WebhookEmail struct {
	EmailAddress string `json:"email_address"`
}

// WebhookUser is the user payload of a user.* event.
type WebhookUser struct {
	ID             string         `json:"id"`
	EmailAddresses []WebhookEmail `json:"email_addresses"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	ImageURL       string         `json:"image_url"`
}

// Email returns the primary address or a placeholder derived from the id.
func (u WebhookUser) Email() string {
	if len(u.EmailAddresses) > 0 && u.EmailAddresses[0].EmailAddress != "" {
		return u.EmailAddresses[0].EmailAddress
	}
	return PlaceholderEmail(u.ID)
}

// FullName joins first and last name; a missing last name becomes "User".
func (u WebhookUser) FullName() string {
	last := u.LastName
	if last == "" {
		last = "User"
	}
	return strings.TrimSpace(u.FirstName + " " + last)
}

// PlaceholderEmail is used for identities that have no email address.
func PlaceholderEmail(id string) string {
	return fmt.Sprintf("no-email-%s@temp.com", id)
}

type WebhookEvent struct {
	Type string      `json:"type"`
	Data WebhookUser `json:"data"`
}

// WebhookVerifier checks svix signatures on identity webhooks. The svix
// library enforces a five minute timestamp window.
type WebhookVerifier struct {
	wh *svix.Webhook
}

// NewWebhookVerifier accepts the secret with or without its "whsec_" prefix.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	if strings.TrimPrefix(secret, "whsec_") == "" {
		return nil, errors.New("empty webhook secret")
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	return &WebhookVerifier{wh: wh}, nil
}

// Verify authenticates body against the signature headers and decodes it.
func (v *WebhookVerifier) Verify(h http.Header, body []byte) (*WebhookEvent, error) {
	if h.Get(HeaderWebhookID) == "" || h.Get(HeaderWebhookTimestamp) == "" || h.Get(HeaderWebhookSignature) == "" {
		return nil, ErrMissingWebhookHeaders
	}
	if err := v.wh.Verify(body, h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return &ev, nil
}

// Sign builds the signature header value for a payload. Used by tests and
// local tooling that replays provider events.
func (v *WebhookVerifier) Sign(id string, at time.Time, body []byte) (timestamp, signature string, err error) {
	signature, err = v.wh.Sign(id, at, body)
	if err != nil {
		return "", "", fmt.Errorf("sign webhook: %w", err)
	}
	return strconv.FormatInt(at.Unix(), 10), signature, nil
}
