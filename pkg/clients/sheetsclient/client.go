package sheetsclient

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/omerharel/dutywatch/internal/config"
	"github.com/omerharel/dutywatch/pkg/utils"
)

// Client wraps the Google Sheets API client for a single spreadsheet.
// All roster, task and release tabs live in that one document.
type Client struct {
	service       *sheets.Service
	token         *oauth2.Token
	spreadsheetID string

	// Sheet metadata rarely changes, so title/index lookups are cached
	// after the first fetch. RefreshMetadata drops the cache.
	metaMu       sync.Mutex
	indexByTitle map[string]int
	titleByIndex map[int]string
}

// NewClient creates a new Sheets client using OAuth credentials and performs OAuth flow if needed
// Requests all necessary scopes upfront (sheets, gmail) so the token can be shared across clients
// Tokens are persisted to disk for the given environment
func NewClient(ctx context.Context, oauthCfg *config.OAuthClientConfig, env, spreadsheetID string) (*Client, error) {
	// Get OAuth config with all required scopes for the application
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth config: %w", err)
	}

	// Get token (will perform OAuth flow if needed, tokens are persisted to disk)
	token, err := utils.GetTokenWithFlow(ctx, oauthConfig, env)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth token: %w", err)
	}

	// Create HTTP client with token
	httpClient := oauthConfig.Client(ctx, token)

	service, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		service:       service,
		token:         token,
		spreadsheetID: spreadsheetID,
	}, nil
}

// Service returns the underlying sheets service for direct API access
func (c *Client) Service() *sheets.Service {
	return c.service
}

// Token returns the OAuth token used by this client
func (c *Client) Token() *oauth2.Token {
	return c.token
}
