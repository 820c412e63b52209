package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

const DefaultFirebaseEndpoint = "https://identitytoolkit.googleapis.com/v1"

// ProviderError carries a non-200 identity response. Body is the provider's JSON verbatim.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider returned %d: %s", e.Status, e.Body)
}

// Message extracts error.message from the provider body when present.
func (e *ProviderError) Message() string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return e.Body
}

// FirebaseProvider talks to the Identity Toolkit REST API.
type FirebaseProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
	attempts uint
	delay    time.Duration
	logger   *zap.Logger
}

type FirebaseOption func(*FirebaseProvider)

// WithEndpoint points the provider at another base URL (used by tests and emulators).
func WithEndpoint(endpoint string) FirebaseOption {
	return func(p *FirebaseProvider) { p.endpoint = strings.TrimRight(endpoint, "/") }
}

func WithHTTPClient(c *http.Client) FirebaseOption {
	return func(p *FirebaseProvider) { p.client = c }
}

func WithRetry(attempts uint, delay time.Duration) FirebaseOption {
	return func(p *FirebaseProvider) {
		p.attempts = attempts
		p.delay = delay
	}
}

func WithLogger(l *zap.Logger) FirebaseOption {
	return func(p *FirebaseProvider) { p.logger = l }
}

func NewFirebaseProvider(apiKey string, opts ...FirebaseOption) (*FirebaseProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("firebase web api key is required")
	}
	p := &FirebaseProvider{
		apiKey:   apiKey,
		endpoint: DefaultFirebaseEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		attempts: 3,
		delay:    300 * time.Millisecond,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type firebaseAuthResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
}

func (p *FirebaseProvider) SignUp(ctx context.Context, email, password string) (User, error) {
	if err := checkCredentials(email, password); err != nil {
		return User{}, err
	}
	return p.call(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

func (p *FirebaseProvider) Login(ctx context.Context, email, password string) (User, error) {
	if err := checkCredentials(email, password); err != nil {
		return User{}, err
	}
	return p.call(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

func (p *FirebaseProvider) Anonymous(ctx context.Context) (User, error) {
	u, err := p.call(ctx, "accounts:signUp", map[string]any{"returnSecureToken": true})
	if err != nil {
		return User{}, err
	}
	u.Anonymous = true
	return u, nil
}

func (p *FirebaseProvider) call(ctx context.Context, method string, payload map[string]any) (User, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return User{}, fmt.Errorf("marshal %s request: %w", method, err)
	}
	target := fmt.Sprintf("%s/%s?key=%s", p.endpoint, method, url.QueryEscape(p.apiKey))

	resp, err := retry.DoWithData(
		func() (firebaseAuthResponse, error) {
			return p.post(ctx, target, body)
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("identity request retry", zap.String("method", method), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return User{}, err
	}
	return User{ID: resp.LocalID, Email: resp.Email, IDToken: resp.IDToken}, nil
}

func (p *FirebaseProvider) post(ctx context.Context, target string, body []byte) (firebaseAuthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return firebaseAuthResponse{}, retry.Unrecoverable(fmt.Errorf("build identity request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return firebaseAuthResponse{}, fmt.Errorf("identity request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return firebaseAuthResponse{}, fmt.Errorf("read identity response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		perr := &ProviderError{Status: res.StatusCode, Body: strings.TrimSpace(string(data))}
		if res.StatusCode >= 500 {
			return firebaseAuthResponse{}, perr
		}
		return firebaseAuthResponse{}, retry.Unrecoverable(perr)
	}

	var out firebaseAuthResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return firebaseAuthResponse{}, retry.Unrecoverable(fmt.Errorf("decode identity response: %w", err))
	}
	if out.LocalID == "" {
		return firebaseAuthResponse{}, retry.Unrecoverable(fmt.Errorf("identity response missing localId"))
	}
	return out, nil
}

func checkCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmailRequired
	}
	if password == "" {
		return ErrPasswordRequired
	}
	return nil
}
