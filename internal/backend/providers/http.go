package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"hubconnect/internal/backend/models"
)

const maxResponseBytes = 1 << 20

// statusError is a non-2xx provider response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// apiClient performs JSON calls against one provider and classifies
// transport failures as ProviderUnavailableError.
type apiClient struct {
	provider models.ProviderKind
	client   *http.Client
}

func newAPIClient(provider models.ProviderKind, client *http.Client) *apiClient {
	return &apiClient{provider: provider, client: client}
}

func (c *apiClient) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", c.provider.Title(), err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *apiClient) newJSONRequest(ctx context.Context, method, rawURL string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", c.provider.Title(), err)
	}
	req, err := c.newRequest(ctx, method, rawURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *apiClient) newFormRequest(ctx context.Context, rawURL string, form url.Values) (*http.Request, error) {
	req, err := c.newRequest(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// send executes req and decodes a 2xx JSON body into out when out is non-nil.
func (c *apiClient) send(req *http.Request, out any) error {
	return c.do(c.client, req, out)
}

// sendAuthorized is send with token as the request's OAuth credential.
func (c *apiClient) sendAuthorized(req *http.Request, token *oauth2.Token, out any) error {
	return c.do(c.tokenClient(req.Context(), token), req, out)
}

// tokenClient wraps the shared HTTP client in an oauth2 transport that
// authenticates every request with token.
func (c *apiClient) tokenClient(ctx context.Context, token *oauth2.Token) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
}

func (c *apiClient) do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &ProviderUnavailableError{Provider: c.provider, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &ProviderUnavailableError{Provider: c.provider, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", c.provider.Title(), err)
	}
	return nil
}

// identityError converts a failed identity call into IdentityFetchError,
// leaving availability errors untouched.
func (c *apiClient) identityError(err error) error {
	if IsUnavailable(err) {
		return err
	}
	return &IdentityFetchError{Provider: c.provider, Reason: err.Error()}
}

// exchangeError converts a failed token call into ExchangeError, leaving
// availability errors untouched.
func (c *apiClient) exchangeError(err error) error {
	if IsUnavailable(err) {
		return err
	}
	return &ExchangeError{Provider: c.provider, Reason: err.Error()}
}

// exchange runs the standard authorization-code grant through x/oauth2.
func (c *apiClient) exchange(ctx context.Context, conf *oauth2.Config, code, redirectURI string) (*oauth2.Token, error) {
	cfg := *conf
	if redirectURI != "" {
		cfg.RedirectURL = redirectURI
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	token, err := cfg.Exchange(ctx, code)
	if err == nil {
		return token, nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return nil, &ExchangeError{Provider: c.provider, Reason: describeRetrieveError(retrieveErr)}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return nil, &ProviderUnavailableError{Provider: c.provider, Err: err}
	}

	return nil, &ExchangeError{Provider: c.provider, Reason: err.Error()}
}

func describeRetrieveError(err *oauth2.RetrieveError) string {
	switch {
	case err.ErrorDescription != "":
		return err.ErrorDescription
	case err.ErrorCode != "":
		return err.ErrorCode
	case err.Response != nil:
		return fmt.Sprintf("unexpected status %d", err.Response.StatusCode)
	default:
		return "token endpoint rejected the request"
	}
}

func bearer(token string) *oauth2.Token {
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
