package provider

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/errors"
	"github.com/satwatch/satwatch-go/internal/logging"
	"github.com/satwatch/satwatch-go/internal/observability/metrics"
)

// expiryMargin is subtracted from the token lifetime so a token is refreshed
// before it can expire mid-request.
const expiryMargin = 60 * time.Second

// TokenManager obtains and caches OAuth2 bearer tokens via the
// client-credentials grant. Concurrent refresh attempts are collapsed into a
// single exchange.
type TokenManager struct {
	exchange   *clientcredentials.Config
	httpClient *http.Client
	metrics    *metrics.ProviderMetrics

	mu     sync.Mutex
	token  *oauth2.Token
	flight singleflight.Group

	// now is replaceable in tests to drive token expiry.
	now func() time.Time
}

// NewTokenManager creates a token manager for the configured provider. The
// providerMetrics argument may be nil.
func NewTokenManager(settings *conf.ProviderSettings, httpClient *http.Client, providerMetrics *metrics.ProviderMetrics) *TokenManager {
	return &TokenManager{
		exchange: &clientcredentials.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			TokenURL:     settings.AuthURL,
		},
		httpClient: httpClient,
		metrics:    providerMetrics,
		now:        time.Now,
	}
}

// Token returns a valid bearer token, performing a client-credentials
// exchange when the cached token is absent or within the expiry margin.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	cached := m.token
	m.mu.Unlock()

	if cached != nil && m.valid(cached) {
		return cached.AccessToken, nil
	}

	// Collapse concurrent refreshes into one exchange. Workers that arrive
	// while an exchange is in flight share its result.
	result, err, _ := m.flight.Do("token", func() (any, error) {
		// A racing caller may have refreshed the token already.
		m.mu.Lock()
		if m.token != nil && m.valid(m.token) {
			token := m.token
			m.mu.Unlock()
			return token, nil
		}
		m.mu.Unlock()

		token, err := m.fetchToken(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.token = token
		m.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return result.(*oauth2.Token).AccessToken, nil
}

// Invalidate drops the cached token so the next Token call performs a fresh
// exchange. Called when the provider answers 401 to a request carrying a
// token that should still be valid.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

// valid reports whether the token is still usable, honoring the expiry margin.
func (m *TokenManager) valid(token *oauth2.Token) bool {
	if token.AccessToken == "" {
		return false
	}
	if token.Expiry.IsZero() {
		return true
	}
	return m.now().Add(expiryMargin).Before(token.Expiry)
}

// fetchToken performs the client-credentials exchange and classifies
// failures: credential rejection is permanent (ErrAuthRejected), transport
// problems are transient.
func (m *TokenManager) fetchToken(ctx context.Context) (*oauth2.Token, error) {
	// Route the oauth2 exchange through our own HTTP client so timeouts and
	// test transports apply.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	token, err := m.exchange.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := retrieveErr.Response.StatusCode
			if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
				logging.Error("Provider rejected client credentials",
					"status", status, "token_url", m.exchange.TokenURL)
				return nil, errors.New(errors.Join(ErrAuthRejected, err)).
					Component("provider").
					Category(errors.CategoryAuth).
					Context("status", status).
					Build()
			}
		}
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryNetwork).
			Context("operation", "token_exchange").
			Build()
	}

	// Re-stamp the expiry from the manager's clock so valid() and the
	// exchange agree on a single time source.
	if !token.Expiry.IsZero() {
		token.Expiry = m.now().Add(time.Until(token.Expiry))
	}

	if m.metrics != nil {
		m.metrics.RecordTokenRefresh()
	}
	logging.Debug("Obtained provider token", "expires", token.Expiry)
	return token, nil
}
