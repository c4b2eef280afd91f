package chatclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/aaronBIOO/QuickChat/internal/domain"
)

// APIError is a non-2xx answer from the server. It unwraps to the domain
// error matching its status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusBadRequest:
		return domain.ErrInvalidInput
	case http.StatusBadGateway:
		return domain.ErrUpstream
	default:
		return domain.ErrInternal
	}
}

// HTTPAPI talks to the REST endpoints with a bearer token.
type HTTPAPI struct {
	base   string
	token  string
	client *http.Client
}

var _ API = (*HTTPAPI)(nil)

// NewHTTPAPI builds a client for the server at baseURL, e.g.
// "http://localhost:5000". A nil client gets a 15s timeout.
func NewHTTPAPI(baseURL, token string, client *http.Client) *HTTPAPI {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPAPI{base: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

func (a *HTTPAPI) ListPeers(ctx context.Context) ([]Peer, map[string]int, error) {
	var out struct {
		Users          []Peer         `json:"users"`
		UnseenMessages map[string]int `json:"unseenMessages"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/messages/users", nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Users, out.UnseenMessages, nil
}

func (a *HTTPAPI) Conversation(ctx context.Context, peerID string) ([]*domain.Message, error) {
	var out struct {
		Messages []*domain.Message `json:"messages"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(peerID), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (a *HTTPAPI) Send(ctx context.Context, peerID string, in SendRequest) (*domain.Message, error) {
	var out struct {
		NewMessage *domain.Message `json:"newMessage"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(peerID), in, &out); err != nil {
		return nil, err
	}
	return out.NewMessage, nil
}

func (a *HTTPAPI) MarkSeen(ctx context.Context, messageID string) error {
	return a.do(ctx, http.MethodPut, "/api/messages/mark/"+url.PathEscape(messageID), nil, nil)
}

func (a *HTTPAPI) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var fail struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &fail) == nil && fail.Message != "" {
			apiErr.Message = fail.Message
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
