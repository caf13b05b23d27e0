package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jsvoboda/webshare_downloader/internal/download"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a minimal stand-in for the Webshare XML API. Handlers are keyed
// by endpoint name ("salt", "login", ...) and receive the parsed form.
type fakeAPI struct {
	t        *testing.T
	handlers map[string]func(form url.Values) string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()

	api := &fakeAPI{t: t, handlers: map[string]func(url.Values) string{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())

		endpoint := strings.Trim(r.URL.Path, "/")

		handler, ok := api.handlers[endpoint]
		if !ok {
			t.Fatalf("unexpected endpoint %q", endpoint)
		}

		w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
		fmt.Fprint(w, handler(r.PostForm))
	}))
	t.Cleanup(srv.Close)

	return api, NewClient(srv.URL)
}

func (a *fakeAPI) on(endpoint string, handler func(form url.Values) string) {
	a.handlers[endpoint] = handler
}

func (a *fakeAPI) allowLogin(token string) {
	a.on("salt", func(url.Values) string {
		return `<response><status>OK</status><salt>abcdefgh</salt></response>`
	})
	a.on("login", func(url.Values) string {
		return `<response><status>OK</status><token>` + token + `</token></response>`
	})
}

func TestClient_Login(t *testing.T) {
	api, client := newFakeAPI(t)

	var loginForm url.Values

	api.on("salt", func(form url.Values) string {
		assert.Equal(t, "alice", form.Get("username_or_email"))

		return `<response><status>OK</status><salt>abcdefgh</salt></response>`
	})
	api.on("login", func(form url.Values) string {
		loginForm = form

		return `<response><status>OK</status><token>wst-token-123</token></response>`
	})

	require.NoError(t, client.Login(context.Background(), "alice", "s3cret"))

	assert.True(t, client.LoggedIn())
	assert.Equal(t, "alice", client.Username())

	// credentials are sent hashed, never in the clear
	assert.Equal(t, "alice", loginForm.Get("username_or_email"))
	assert.NotEqual(t, "s3cret", loginForm.Get("password"))
	assert.Len(t, loginForm.Get("password"), 40)
	assert.Len(t, loginForm.Get("digest"), 32)
	assert.Equal(t, "1", loginForm.Get("keep_logged_in"))
}

func TestClient_LoginRejected(t *testing.T) {
	api, client := newFakeAPI(t)

	api.on("salt", func(url.Values) string {
		return `<response><status>OK</status><salt>abcdefgh</salt></response>`
	})
	api.on("login", func(url.Values) string {
		return `<response><status>FATAL</status><code>LOGIN_FATAL_1</code><message>Invalid password.</message></response>`
	})

	err := client.Login(context.Background(), "alice", "wrong")

	var authErr *download.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "login", authErr.Operation)
	assert.Equal(t, "LOGIN_FATAL_1", authErr.Code)
	assert.False(t, client.LoggedIn())
}

func TestClient_LoginUnknownUser(t *testing.T) {
	api, client := newFakeAPI(t)

	api.on("salt", func(url.Values) string {
		return `<response><status>FATAL</status><code>SALT_FATAL_1</code><message>User does not exist.</message></response>`
	})

	err := client.Login(context.Background(), "ghost", "pw")

	var authErr *download.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "salt", authErr.Operation)
}

func TestClient_SearchRequiresLogin(t *testing.T) {
	_, client := newFakeAPI(t)

	_, err := client.Search(context.Background(), "anything")

	var authErr *download.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "search", authErr.Operation)
}

func TestClient_Search(t *testing.T) {
	api, client := newFakeAPI(t)
	api.allowLogin("wst-token-123")

	api.on("search", func(form url.Values) string {
		assert.Equal(t, "ubuntu iso", form.Get("what"))
		assert.Equal(t, "largest", form.Get("sort"))
		assert.Equal(t, "wst-token-123", form.Get("wst"))

		return `<response><status>OK</status>
			<file><ident>aaa111</ident><name>ubuntu.iso</name><size>3221225472</size><type>iso</type><download_count>120</download_count><rating>4</rating><date_added>2025-01-02</date_added></file>
			<file><ident>bbb222</ident><name>ubuntu-live.iso</name><size>1048576</size><type>iso</type></file>
		</response>`
	})

	require.NoError(t, client.Login(context.Background(), "alice", "pw"))

	results, err := client.Search(context.Background(), "ubuntu iso")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "aaa111", results[0].Ident)
	assert.Equal(t, "ubuntu.iso", results[0].Name)
	assert.Equal(t, int64(3221225472), results[0].Size)
	assert.NotEmpty(t, results[0].SizeFormatted)
	assert.Equal(t, int64(120), results[0].Downloads)

	assert.Equal(t, "bbb222", results[1].Ident)
}

func TestClient_SearchSessionExpired(t *testing.T) {
	api, client := newFakeAPI(t)
	api.allowLogin("stale-token")

	api.on("search", func(url.Values) string {
		return `<response><status>FATAL</status><code>LOGIN_FATAL_1</code><message>User not logged in.</message></response>`
	})

	require.NoError(t, client.Login(context.Background(), "alice", "pw"))

	_, err := client.Search(context.Background(), "anything")

	var authErr *download.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestClient_FileLink(t *testing.T) {
	api, client := newFakeAPI(t)
	api.allowLogin("wst-token-123")

	api.on("file_link", func(form url.Values) string {
		assert.Equal(t, "aaa111", form.Get("ident"))
		assert.Equal(t, "wst-token-123", form.Get("wst"))

		return `<response><status>OK</status><link>https://free.example.test/dl/aaa111/ubuntu.iso</link><name>ubuntu.iso</name><size>1048576</size></response>`
	})

	require.NoError(t, client.Login(context.Background(), "alice", "pw"))

	link, err := client.FileLink(context.Background(), "aaa111")
	require.NoError(t, err)

	assert.Equal(t, "https://free.example.test/dl/aaa111/ubuntu.iso", link.URL)
	assert.Equal(t, "ubuntu.iso", link.Name)
	assert.Equal(t, int64(1048576), link.Size)
}

func TestClient_FileLinkUnavailable(t *testing.T) {
	api, client := newFakeAPI(t)
	api.allowLogin("wst-token-123")

	api.on("file_link", func(url.Values) string {
		return `<response><status>FATAL</status><code>FILE_LINK_FATAL_4</code><message>File is temporarily unavailable.</message></response>`
	})

	require.NoError(t, client.Login(context.Background(), "alice", "pw"))

	_, err := client.FileLink(context.Background(), "gone123")

	var unavailErr *download.UnavailableError
	require.ErrorAs(t, err, &unavailErr)
	assert.Equal(t, "gone123", unavailErr.Ident)
}

func TestClient_FileLinkMissingLink(t *testing.T) {
	api, client := newFakeAPI(t)
	api.allowLogin("wst-token-123")

	api.on("file_link", func(url.Values) string {
		return `<response><status>OK</status></response>`
	})

	require.NoError(t, client.Login(context.Background(), "alice", "pw"))

	_, err := client.FileLink(context.Background(), "aaa111")

	var netErr *download.NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)

	err := client.Login(context.Background(), "alice", "pw")

	var netErr *download.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusBadGateway, netErr.StatusCode)
}

func TestClient_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>definitely not the API</html")
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)

	err := client.Login(context.Background(), "alice", "pw")

	var netErr *download.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Contains(t, netErr.APIMessage, "invalid server response")
}

func TestClient_OpenFile(t *testing.T) {
	payload := []byte("file contents go here")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)

	body, size, err := client.OpenFile(context.Background(), srv.URL+"/dl/file.bin")
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, int64(len(payload)), size)

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestClient_OpenFileNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)

	_, _, err := client.OpenFile(context.Background(), srv.URL+"/dl/missing.bin")

	var netErr *download.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusNotFound, netErr.StatusCode)

	if errors.Is(err, context.Canceled) {
		t.Fatal("status errors must not be classified as cancellation")
	}
}
