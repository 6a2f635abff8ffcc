package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/omerharel/dutywatch/internal/config"
)

const (
	authPort     = 3000
	authTimeout  = 5 * time.Minute
	callbackPath = "/oauth/callback"
	tokenDirName = ".dutywatch/tokens"
	tokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
)

// One consent flow grants both scopes, so the sheets and gmail clients
// share a single token.
const (
	ScopeSheets    = "https://www.googleapis.com/auth/spreadsheets"
	ScopeGmailSend = "https://www.googleapis.com/auth/gmail.send"
)

func requiredScopes() []string {
	return []string{ScopeSheets, ScopeGmailSend}
}

var (
	tokenCache   *oauth2.Token
	tokenCacheMu sync.Mutex
)

// GetOAuthConfig builds the oauth2 config from the client credentials,
// pointing the redirect at the local callback server.
func GetOAuthConfig(oauthCfg *config.OAuthClientConfig) (*oauth2.Config, error) {
	raw, err := json.Marshal(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oauth config: %w", err)
	}

	googleConfig, err := google.ConfigFromJSON(raw, requiredScopes()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}

	googleConfig.RedirectURL = fmt.Sprintf("http://localhost:%d%s", authPort, callbackPath)
	return googleConfig, nil
}

// GetTokenWithFlow returns a usable token for the environment: from the
// in-memory cache, the on-disk store, a refresh, or failing all of
// those an interactive browser flow. Only one flow runs at a time.
func GetTokenWithFlow(ctx context.Context, oauthConfig *oauth2.Config, env string) (*oauth2.Token, error) {
	tokenCacheMu.Lock()
	defer tokenCacheMu.Unlock()

	if tokenCache != nil && tokenCache.Valid() {
		return tokenCache, nil
	}

	store, err := newTokenStore(env)
	if err != nil {
		return nil, err
	}

	if token := reuseStoredToken(ctx, oauthConfig, store); token != nil {
		tokenCache = token
		return token, nil
	}

	token, err := authorize(ctx, oauthConfig)
	if err != nil {
		return nil, err
	}
	if err := validateTokenScopes(ctx, token); err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	if err := store.save(token); err != nil {
		fmt.Printf("Warning: failed to save token: %v\n", err)
	}
	tokenCache = token
	return token, nil
}

// reuseStoredToken tries the on-disk token, refreshing it when expired.
// A token missing a required scope is deleted so the next flow asks for
// consent again. Returns nil when a fresh flow is needed.
func reuseStoredToken(ctx context.Context, oauthConfig *oauth2.Config, store *tokenStore) *oauth2.Token {
	stored, err := store.load()
	if err != nil {
		fmt.Printf("Warning: failed to load stored token: %v\n", err)
		return nil
	}
	if stored == nil {
		return nil
	}

	if stored.Valid() {
		if err := validateTokenScopes(ctx, stored); err != nil {
			fmt.Printf("Stored token is missing required scopes: %v\n", err)
			store.delete()
			return nil
		}
		return stored
	}

	if stored.RefreshToken == "" {
		return nil
	}

	refreshed, err := oauthConfig.TokenSource(ctx, stored).Token()
	if err != nil || refreshed.AccessToken == stored.AccessToken {
		return nil
	}
	if err := validateTokenScopes(ctx, refreshed); err != nil {
		fmt.Printf("Refreshed token is missing required scopes: %v\n", err)
		store.delete()
		return nil
	}

	fmt.Println("Token refreshed successfully")
	if err := store.save(refreshed); err != nil {
		fmt.Printf("Warning: failed to save refreshed token: %v\n", err)
	}
	return refreshed
}

// authorize runs the interactive consent flow: print the consent URL
// and wait for the browser redirect on the local callback server.
func authorize(ctx context.Context, oauthConfig *oauth2.Config) (*oauth2.Token, error) {
	authURL := oauthConfig.AuthCodeURL("state", oauth2.AccessTypeOffline)
	fmt.Printf("\nVisit this URL to authorize the application:\n%s\n\n", authURL)

	code, err := listenForAuthCallback(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return token, nil
}

// validateTokenScopes asks Google's tokeninfo endpoint which scopes the
// token actually carries and errors on any missing one.
func validateTokenScopes(ctx context.Context, token *oauth2.Token) error {
	req, err := http.NewRequestWithContext(ctx, "GET", tokenInfoURL+"?access_token="+token.AccessToken, nil)
	if err != nil {
		return fmt.Errorf("failed to create tokeninfo request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call tokeninfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tokeninfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenInfo struct {
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return fmt.Errorf("failed to decode tokeninfo response: %w", err)
	}

	granted := strings.Split(tokenInfo.Scope, " ")
	var missing []string
	for _, required := range requiredScopes() {
		if !slices.Contains(granted, required) {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("token is missing required scopes: %v", missing)
	}
	return nil
}

// listenForAuthCallback serves the redirect endpoint until a code
// arrives, the context ends, or the timeout elapses.
func listenForAuthCallback(ctx context.Context) (string, error) {
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", authPort),
		Handler: mux,
	}

	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Authorization successful!</h1>"+
			"<p>You can close this window and return to the application.</p></body></html>")

		codeChan <- code
	})

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	var code string
	var authErr error
	select {
	case code = <-codeChan:
	case authErr = <-errChan:
	case <-timeoutCtx.Done():
		authErr = fmt.Errorf("authorization timeout after %v", authTimeout)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	if authErr != nil {
		return "", authErr
	}
	return code, nil
}

// tokenStore persists one token per environment under the user's home
// directory, owner-readable only.
type tokenStore struct {
	path string
}

func newTokenStore(env string) (*tokenStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	path := filepath.Join(homeDir, tokenDirName, fmt.Sprintf("token-%s.json", env))
	return &tokenStore{path: path}, nil
}

// load returns nil, nil when no token has been stored yet.
func (s *tokenStore) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &token, nil
}

func (s *tokenStore) save(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (s *tokenStore) delete() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: failed to delete token file: %v\n", err)
	}
}
