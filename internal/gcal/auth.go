package gcal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const defaultTokenURI = "https://oauth2.googleapis.com/token"

// expirySkew renews access tokens slightly before they actually expire.
const expirySkew = time.Minute

// ErrNoRefreshToken means the stored token cannot be renewed; the user
// has to run the OAuth consent flow again out of band.
var ErrNoRefreshToken = errors.New("gcal: token has no refresh_token")

// Credentials is the OAuth client registration, read from the
// credentials JSON Google hands out for installed applications.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURI     string
}

type credentialsFile struct {
	Installed *credentialsBody `json:"installed"`
	Web       *credentialsBody `json:"web"`
}

type credentialsBody struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURI     string `json:"token_uri"`
}

// LoadCredentials reads the OAuth client registration from raw JSON, or
// from file when raw is empty.
func LoadCredentials(fs afero.Fs, file string, raw []byte) (Credentials, error) {
	data, err := readMaterial(fs, file, raw)
	if err != nil {
		return Credentials{}, fmt.Errorf("gcal: read oauth client: %w", err)
	}
	var cf credentialsFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return Credentials{}, fmt.Errorf("gcal: parse oauth client: %w", err)
	}
	body := cf.Installed
	if body == nil {
		body = cf.Web
	}
	if body == nil || body.ClientID == "" {
		return Credentials{}, errors.New("gcal: oauth client json has no installed or web section")
	}
	creds := Credentials{
		ClientID:     body.ClientID,
		ClientSecret: body.ClientSecret,
		TokenURI:     body.TokenURI,
	}
	if creds.TokenURI == "" {
		creds.TokenURI = defaultTokenURI
	}
	return creds, nil
}

// Token is the stored OAuth token. Only RefreshToken must be present;
// the access token is renewed on demand.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

func (t *Token) valid(now time.Time) bool {
	return t.AccessToken != "" && !t.Expiry.IsZero() && now.Before(t.Expiry.Add(-expirySkew))
}

// LoadToken reads the stored token from raw JSON, or from file when raw
// is empty.
func LoadToken(fs afero.Fs, file string, raw []byte) (*Token, error) {
	data, err := readMaterial(fs, file, raw)
	if err != nil {
		return nil, fmt.Errorf("gcal: read token: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("gcal: parse token: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	return &tok, nil
}

func readMaterial(fs afero.Fs, file string, raw []byte) ([]byte, error) {
	if len(raw) > 0 {
		return raw, nil
	}
	if file == "" {
		return nil, errors.New("neither file nor inline material configured")
	}
	return afero.ReadFile(fs, file)
}

// NewTokenClient wraps an http.Client with transparent bearer-token
// injection and refresh. Refreshed tokens are written back to tokenFile
// when it is set, so restarts reuse the cached access token.
func NewTokenClient(fs afero.Fs, creds Credentials, tok *Token, tokenFile string) *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &tokenTransport{
			base:      http.DefaultTransport,
			fs:        fs,
			creds:     creds,
			token:     tok,
			tokenFile: tokenFile,
			now:       time.Now,
		},
	}
}

type tokenTransport struct {
	base  http.RoundTripper
	fs    afero.Fs
	creds Credentials

	tokenFile string
	now       func() time.Time

	mu    sync.Mutex
	token *Token
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	access, err := t.accessToken(req)
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+access)
	return t.base.RoundTrip(clone)
}

func (t *tokenTransport) accessToken(req *http.Request) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token.valid(t.now()) {
		return t.token.AccessToken, nil
	}
	if err := t.refresh(req); err != nil {
		return "", err
	}
	return t.token.AccessToken, nil
}

// refresh exchanges the refresh token for a new access token and
// persists the result. Caller holds mu.
func (t *tokenTransport) refresh(req *http.Request) error {
	if t.token.RefreshToken == "" {
		return ErrNoRefreshToken
	}
	form := url.Values{
		"client_id":     {t.creds.ClientID},
		"client_secret": {t.creds.ClientSecret},
		"refresh_token": {t.token.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	httpReq, err := http.NewRequestWithContext(req.Context(), http.MethodPost, t.creds.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.base.RoundTrip(httpReq)
	if err != nil {
		return fmt.Errorf("gcal: refresh token: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	var payload struct {
		AccessToken  string `json:"access_token"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("gcal: parse token response: %w", err)
	}
	if payload.AccessToken == "" {
		return errors.New("gcal: token response has no access_token")
	}

	t.token.AccessToken = payload.AccessToken
	t.token.Expiry = t.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	if payload.RefreshToken != "" {
		t.token.RefreshToken = payload.RefreshToken
	}
	t.persist()
	return nil
}

// persist is best effort; a read-only token file must not fail a run.
func (t *tokenTransport) persist() {
	if t.tokenFile == "" {
		return
	}
	data, err := json.MarshalIndent(t.token, "", "  ")
	if err != nil {
		return
	}
	_ = afero.WriteFile(t.fs, t.tokenFile, data, 0600)
}
