package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnavailable marks a failed page fetch. One occurrence terminates the
// current sync run; records from earlier pages keep their outcomes.
var ErrUnavailable = errors.New("identity directory unavailable")

// EmailAddress is one address attached to a directory record.
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// ExternalAccount is a third-party account linked on the provider side.
// Provider may carry an "oauth_" namespace prefix; CreatedAt is epoch millis
// (0 when the provider did not report it).
type ExternalAccount struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"provider_user_id"`
	EmailAddress   string `json:"email_address"`
	Username       string `json:"username"`
	AvatarURL      string `json:"avatar_url"`
	CreatedAt      int64  `json:"created_at"`
}

// Record is one user entity as reported by the identity provider.
// Timestamps are epoch millis as returned on the wire; LastSignInAt is 0 when
// the user never signed in.
type Record struct {
	ID                    string            `json:"id"`
	EmailAddresses        []EmailAddress    `json:"email_addresses"`
	PrimaryEmailAddressID string            `json:"primary_email_address_id"`
	FirstName             string            `json:"first_name"`
	LastName              string            `json:"last_name"`
	CreatedAt             int64             `json:"created_at"`
	LastSignInAt          int64             `json:"last_sign_in_at"`
	ExternalAccounts      []ExternalAccount `json:"external_accounts"`
}

// PrimaryEmail resolves the address referenced by PrimaryEmailAddressID.
// Empty result means the record carries no usable business key.
func (r *Record) PrimaryEmail() string {
	for _, e := range r.EmailAddresses {
		if e.ID == r.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	return ""
}

// Client fetches user pages from a Clerk-style directory API. Requests are
// throttled client-side so a full sync stays under the provider's rate limit.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a directory client. baseURL is the API root without a
// trailing slash, e.g. "https://api.clerk.com".
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(10), 10),
	}
}

// ListUsers fetches one page of directory records. Any transport or non-200
// response is reported as ErrUnavailable.
func (c *Client) ListUsers(ctx context.Context, limit, offset int) ([]Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("offset", fmt.Sprintf("%d", offset))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/users?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain a little of the body for the log line, ignore read errors
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, body)
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return records, nil
}
