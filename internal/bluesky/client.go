package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultService   = "https://bsky.social"
	defaultChatProxy = "did:web:api.bsky.chat#bsky_chat"
	defaultUserAgent = "skyreply/0.1"

	errExpiredToken = "ExpiredToken"
)

// Config controls how the XRPC client behaves.
type Config struct {
	Service    string
	Identifier string
	Password   string
	// ChatProxy is sent as the atproto-proxy header on chat.bsky.* calls.
	ChatProxy  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Client is a minimal XRPC client for the account and chat endpoints the agent needs.
type Client struct {
	service    string
	identifier string
	password   string
	chatProxy  string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string

	mu      sync.RWMutex
	session *Session

	// refreshMu serializes session renewal across concurrent callers.
	refreshMu sync.Mutex
}

// Session is an authenticated account session.
type Session struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// APIError is an XRPC error response.
type APIError struct {
	StatusCode int
	Name       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bluesky: %d %s", e.StatusCode, e.Name)
	}
	return fmt.Sprintf("bluesky: %d %s: %s", e.StatusCode, e.Name, e.Message)
}

// IsExpiredToken reports whether err is an XRPC ExpiredToken error.
func IsExpiredToken(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Name == errExpiredToken
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Identifier) == "" || cfg.Password == "" {
		return nil, errors.New("bluesky: identifier and password are required")
	}
	service := strings.TrimRight(strings.TrimSpace(cfg.Service), "/")
	if service == "" {
		service = defaultService
	}
	chatProxy := strings.TrimSpace(cfg.ChatProxy)
	if chatProxy == "" {
		chatProxy = defaultChatProxy
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		service:    service,
		identifier: strings.TrimSpace(cfg.Identifier),
		password:   cfg.Password,
		chatProxy:  chatProxy,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// Login creates a new session with the configured credentials.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"identifier": c.identifier,
		"password":   c.password,
	})
	if err != nil {
		return fmt.Errorf("bluesky: marshal login body: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, "com.atproto.server.createSession", nil, body, "", false)
	if err != nil {
		return err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return fmt.Errorf("bluesky: decode session: %w", err)
	}
	if sess.DID == "" || sess.AccessJwt == "" {
		return errors.New("bluesky: session response missing did or access token")
	}
	c.setSession(&sess)
	c.logger.Info("bluesky session created", "did", sess.DID, "handle", sess.Handle)
	return nil
}

// DID returns the authenticated account DID, or "" before Login.
func (c *Client) DID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.DID
}

// ListConvos returns one page of the account's conversations.
func (c *Client) ListConvos(ctx context.Context, limit int, cursor string) (*ListConvosOutput, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	data, err := c.invoke(ctx, http.MethodGet, "chat.bsky.convo.listConvos", q, nil, true)
	if err != nil {
		return nil, err
	}
	return decodeOutput[ListConvosOutput](data)
}

// GetMessages returns up to limit messages of a conversation, newest first.
func (c *Client) GetMessages(ctx context.Context, convoID string, limit int, cursor string) (*GetMessagesOutput, error) {
	if strings.TrimSpace(convoID) == "" {
		return nil, errors.New("bluesky: convo id required")
	}
	q := url.Values{}
	q.Set("convoId", convoID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	data, err := c.invoke(ctx, http.MethodGet, "chat.bsky.convo.getMessages", q, nil, true)
	if err != nil {
		return nil, err
	}
	return decodeOutput[GetMessagesOutput](data)
}

// SendMessage posts a message into a conversation.
func (c *Client) SendMessage(ctx context.Context, convoID string, msg MessageInput) (*MessageView, error) {
	if strings.TrimSpace(convoID) == "" {
		return nil, errors.New("bluesky: convo id required")
	}
	body, err := json.Marshal(struct {
		ConvoID string       `json:"convoId"`
		Message MessageInput `json:"message"`
	}{ConvoID: convoID, Message: msg})
	if err != nil {
		return nil, fmt.Errorf("bluesky: marshal send body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "chat.bsky.convo.sendMessage", nil, body, true)
	if err != nil {
		return nil, err
	}
	return decodeOutput[MessageView](data)
}

// ResolveHandle maps a handle to its DID.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	q := url.Values{}
	q.Set("handle", handle)
	data, err := c.invoke(ctx, http.MethodGet, "com.atproto.identity.resolveHandle", q, nil, false)
	if err != nil {
		return "", err
	}
	out, err := decodeOutput[struct {
		DID string `json:"did"`
	}](data)
	if err != nil {
		return "", err
	}
	return out.DID, nil
}

// invoke performs an authenticated call, refreshing the session once on ExpiredToken.
func (c *Client) invoke(ctx context.Context, method, nsid string, query url.Values, body []byte, proxied bool) ([]byte, error) {
	token, err := c.accessToken()
	if err != nil {
		return nil, err
	}
	data, err := c.do(ctx, method, nsid, query, body, token, proxied)
	if !IsExpiredToken(err) {
		return data, err
	}

	c.logger.Debug("bluesky access token expired, refreshing", "nsid", nsid)
	if err := c.refresh(ctx, token); err != nil {
		return nil, err
	}
	token, err = c.accessToken()
	if err != nil {
		return nil, err
	}
	return c.do(ctx, method, nsid, query, body, token, proxied)
}

// refresh trades the refresh token for a new session, falling back to a fresh
// login. Callers pass the access token that was rejected; if another caller
// has already replaced it, refresh returns without contacting the server.
func (c *Client) refresh(ctx context.Context, staleToken string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current, err := c.accessToken(); err == nil && current != staleToken {
		return nil
	}

	c.mu.RLock()
	var refreshJwt string
	if c.session != nil {
		refreshJwt = c.session.RefreshJwt
	}
	c.mu.RUnlock()

	if refreshJwt != "" {
		data, err := c.do(ctx, http.MethodPost, "com.atproto.server.refreshSession", nil, nil, refreshJwt, false)
		if err == nil {
			var sess Session
			if err := json.Unmarshal(data, &sess); err != nil {
				return fmt.Errorf("bluesky: decode refreshed session: %w", err)
			}
			c.setSession(&sess)
			return nil
		}
		c.logger.Warn("bluesky session refresh failed, logging in again", "error", err)
	}
	return c.Login(ctx)
}

func (c *Client) accessToken() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return "", errors.New("bluesky: not logged in")
	}
	return c.session.AccessJwt, nil
}

func (c *Client) setSession(sess *Session) {
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, nsid string, query url.Values, body []byte, token string, proxied bool) ([]byte, error) {
	fullURL := c.service + "/xrpc/" + nsid
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("bluesky: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if proxied {
		req.Header.Set("atproto-proxy", c.chatProxy)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("bluesky: %s: %w", nsid, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bluesky: read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, decodeAPIError(resp.StatusCode, data)
}

func decodeAPIError(status int, body []byte) error {
	var parsed APIError
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Name == "" {
		return &APIError{StatusCode: status, Name: http.StatusText(status), Message: strings.TrimSpace(string(body))}
	}
	parsed.StatusCode = status
	return &parsed
}

func decodeOutput[T any](body []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("bluesky: decode response: %w", err)
	}
	return &out, nil
}
