package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailConfig holds OAuth2 credentials for a Gmail mailbox. RefreshToken
// comes from a prior consent flow; the client mints access tokens from it.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// RequestTimeout bounds individual API calls. Zero means 30s.
	RequestTimeout time.Duration
}

// GmailClient implements MailClient on the Gmail API.
type GmailClient struct {
	service *gmail.Service
	timeout time.Duration
}

// NewGmailClient builds a read-only Gmail client for the authorized user.
func NewGmailClient(ctx context.Context, cfg GmailConfig) (*GmailClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("gmail: client id, client secret and refresh token are required")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("gmail: creating service: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GmailClient{service: svc, timeout: timeout}, nil
}

// Search lists message IDs matching a Gmail query, newest first.
func (c *GmailClient) Search(ctx context.Context, query string, max int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	call := c.service.Users.Messages.List("me").Q(query).Context(ctx)
	if max > 0 {
		call = call.MaxResults(max)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, wrapAPIError("listing messages", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// Fetch retrieves one message with its full payload and decodes the body.
func (c *GmailClient) Fetch(ctx context.Context, id string) (*RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.service.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("fetching message "+id, err)
	}

	raw := &RawMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Date:     time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				raw.Subject = h.Value
			case "from":
				raw.From = h.Value
			}
		}
		collectBodies(msg.Payload, raw)
	}
	return raw, nil
}

// collectBodies walks the MIME tree and keeps the first text/html and
// text/plain bodies it finds. Multipart nodes carry their content in
// child parts, so recursion does the work.
func collectBodies(part *gmail.MessagePart, raw *RawMessage) {
	if part == nil {
		return
	}
	if part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			decoded, err = base64.RawURLEncoding.DecodeString(part.Body.Data)
		}
		if err == nil {
			switch {
			case strings.HasPrefix(part.MimeType, "text/html") && raw.BodyHTML == "":
				raw.BodyHTML = string(decoded)
			case strings.HasPrefix(part.MimeType, "text/plain") && raw.BodyText == "":
				raw.BodyText = string(decoded)
			}
		}
	}
	for _, child := range part.Parts {
		collectBodies(child, raw)
	}
}

func wrapAPIError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == 401 || apiErr.Code == 403) {
		return fmt.Errorf("gmail: %s: %w", op, ErrAuthExpired)
	}
	return fmt.Errorf("gmail: %s: %w", op, err)
}

// BuildSearchQuery composes the Gmail query used to find candidate
// shipping emails within the lookback window. Promotions-category mail is
// excluded up front; the keyword pre-filter handles what slips through.
func BuildSearchQuery(lookback time.Duration) string {
	days := int(lookback.Hours() / 24)
	if days < 1 {
		days = 1
	}
	return fmt.Sprintf(
		`(shipped OR shipping OR delivery OR delivered OR tracking OR dispatched OR "out for delivery" OR "order confirmed") -category:promotions newer_than:%dd`,
		days)
}
