package ws

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jsvoboda/webshare_downloader/internal/download"
	"github.com/jsvoboda/webshare_downloader/internal/logctx"
)

const (
	// DefaultBaseURL is the production Webshare API endpoint.
	DefaultBaseURL = "https://webshare.cz/api"

	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Client talks to the Webshare.cz XML API. All endpoints are form POSTs that
// answer with a small <response> envelope; authenticated calls carry the
// session token obtained by Login.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu       sync.RWMutex
	token    string
	username string
}

// FileResult is one search hit.
type FileResult struct {
	Ident         string `json:"id"`
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"sizeFormatted"`
	Type          string `json:"type"`
	Downloads     int64  `json:"downloads"`
	Rating        int64  `json:"rating"`
	Date          string `json:"date"`
}

type apiFile struct {
	Ident     string `xml:"ident"`
	Name      string `xml:"name"`
	Size      int64  `xml:"size"`
	Type      string `xml:"type"`
	Downloads int64  `xml:"download_count"`
	Rating    int64  `xml:"rating"`
	Date      string `xml:"date_added"`
}

type apiResponse struct {
	XMLName xml.Name  `xml:"response"`
	Status  string    `xml:"status"`
	Code    string    `xml:"code"`
	Message string    `xml:"message"`
	Salt    string    `xml:"salt"`
	Token   string    `xml:"token"`
	Link    string    `xml:"link"`
	Name    string    `xml:"name"`
	Size    int64     `xml:"size"`
	Files   []apiFile `xml:"file"`
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// LoggedIn reports whether the client holds a session token.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.token != ""
}

// Username returns the account the current session belongs to, if any.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.username
}

// Login authenticates against Webshare: it fetches the account salt, derives
// the hashed credentials and exchanges them for a session token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	logger := logctx.LoggerFromContext(ctx).With("user", username)

	salt, err := c.salt(ctx, username)
	if err != nil {
		return err
	}

	passwordHash, digest, err := hashPassword(username, password, salt)
	if err != nil {
		return &download.AuthError{Operation: "login", Message: "failed to hash password", Err: err}
	}

	resp, err := c.post(ctx, "login", url.Values{
		"username_or_email": {username},
		"password":          {passwordHash},
		"digest":            {digest},
		"keep_logged_in":    {"1"},
	})
	if err != nil {
		return err
	}

	if resp.Status != "OK" {
		return &download.AuthError{Operation: "login", Code: resp.Code, Message: resp.Message}
	}

	if resp.Token == "" {
		return &download.AuthError{Operation: "login", Message: "login succeeded but no token received"}
	}

	c.mu.Lock()
	c.token = resp.Token
	c.username = username
	c.mu.Unlock()

	logger.InfoContext(ctx, "logged in to Webshare")

	return nil
}

// Search queries Webshare for files matching query, largest first.
func (c *Client) Search(ctx context.Context, query string) ([]FileResult, error) {
	token, err := c.sessionToken("search")
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "search", url.Values{
		"what":     {query},
		"category": {""},
		"sort":     {"largest"},
		"order":    {"desc"},
		"wst":      {token},
	})
	if err != nil {
		return nil, err
	}

	if resp.Status != "OK" {
		return nil, c.classify("search", resp)
	}

	results := make([]FileResult, 0, len(resp.Files))

	for _, f := range resp.Files {
		results = append(results, FileResult{
			Ident:         f.Ident,
			Name:          f.Name,
			Size:          f.Size,
			SizeFormatted: humanize.Bytes(uint64(f.Size)),
			Type:          f.Type,
			Downloads:     f.Downloads,
			Rating:        f.Rating,
			Date:          f.Date,
		})
	}

	return results, nil
}

// FileLink resolves a file identifier into a direct download link.
func (c *Client) FileLink(ctx context.Context, ident string) (*download.Link, error) {
	token, err := c.sessionToken("file_link")
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "file_link", url.Values{
		"ident": {ident},
		"wst":   {token},
	})
	if err != nil {
		return nil, err
	}

	if resp.Status != "OK" {
		return nil, c.classifyFileLink(ident, resp)
	}

	if resp.Link == "" {
		return nil, &download.NetworkError{Operation: "file_link", APIMessage: "no download link in response"}
	}

	return &download.Link{
		URL:  resp.Link,
		Name: resp.Name,
		Size: resp.Size,
	}, nil
}

// OpenFile opens a streaming read of the given link URL. The returned size is
// negative when the server does not report Content-Length.
func (c *Client) OpenFile(ctx context.Context, fileURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, 0, &download.NetworkError{Operation: "open_file", APIMessage: err.Error(), Err: err}
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &download.NetworkError{Operation: "open_file", APIMessage: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()

		return nil, 0, &download.NetworkError{
			Operation:  "open_file",
			StatusCode: resp.StatusCode,
			APIMessage: resp.Status,
		}
	}

	return resp.Body, resp.ContentLength, nil
}

func (c *Client) salt(ctx context.Context, username string) (string, error) {
	resp, err := c.post(ctx, "salt", url.Values{"username_or_email": {username}})
	if err != nil {
		return "", err
	}

	if resp.Status != "OK" {
		return "", &download.AuthError{Operation: "salt", Code: resp.Code, Message: resp.Message}
	}

	if resp.Salt == "" {
		return "", &download.AuthError{Operation: "salt", Message: "no salt in response"}
	}

	return resp.Salt, nil
}

func (c *Client) sessionToken(op string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" {
		return "", &download.AuthError{Operation: op, Message: "not logged in"}
	}

	return c.token, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/"+endpoint+"/",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, &download.NetworkError{Operation: endpoint, APIMessage: err.Error(), Err: err}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &download.NetworkError{Operation: endpoint, APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &download.NetworkError{
			Operation:  endpoint,
			StatusCode: resp.StatusCode,
			APIMessage: resp.Status,
		}
	}

	var parsed apiResponse
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &download.NetworkError{
			Operation:  endpoint,
			APIMessage: "invalid server response",
			Err:        err,
		}
	}

	return &parsed, nil
}

// classify maps a non-OK API envelope to a typed error.
func (c *Client) classify(op string, resp *apiResponse) error {
	if strings.HasPrefix(resp.Code, "LOGIN") || strings.Contains(strings.ToLower(resp.Message), "not logged in") {
		return &download.AuthError{Operation: op, Code: resp.Code, Message: resp.Message}
	}

	return &download.NetworkError{
		Operation:  op,
		APIMessage: fmt.Sprintf("%s (code: %s)", resp.Message, resp.Code),
	}
}

// classifyFileLink additionally recognizes the "file temporarily unavailable"
// family of file_link failures so callers can tell users to retry later.
func (c *Client) classifyFileLink(ident string, resp *apiResponse) error {
	msg := strings.ToLower(resp.Message)

	if strings.Contains(msg, "unavailable") || strings.Contains(msg, "temporarily") {
		return &download.UnavailableError{Ident: ident, Message: resp.Message}
	}

	return c.classify("file_link", resp)
}
