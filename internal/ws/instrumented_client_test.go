package ws

import (
	"context"
	"net/url"
	"testing"

	"github.com/jsvoboda/webshare_downloader/internal/download"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The instrumented wrapper must behave exactly like the bare client: same
// results, same typed errors, with a nil telemetry handle tolerated.
func TestInstrumentedClient_Passthrough(t *testing.T) {
	api, inner := newFakeAPI(t)
	api.allowLogin("wst-token-123")

	api.on("search", func(form url.Values) string {
		assert.Equal(t, "ubuntu", form.Get("what"))

		return `<response><status>OK</status>
			<file><ident>aaa111</ident><name>ubuntu.iso</name><size>1048576</size></file>
		</response>`
	})
	api.on("file_link", func(form url.Values) string {
		assert.Equal(t, "aaa111", form.Get("ident"))

		return `<response><status>OK</status><link>https://cdn.example.test/aaa111</link></response>`
	})

	client := NewInstrumentedClient(inner, nil)

	require.NoError(t, client.Login(context.Background(), "alice", "pw"))
	assert.True(t, client.LoggedIn())
	assert.Equal(t, "alice", client.Username())

	results, err := client.Search(context.Background(), "ubuntu")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "aaa111", results[0].Ident)

	link, err := client.FileLink(context.Background(), "aaa111")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test/aaa111", link.URL)
}

func TestInstrumentedClient_ErrorsKeepType(t *testing.T) {
	_, inner := newFakeAPI(t)

	client := NewInstrumentedClient(inner, nil)

	_, err := client.Search(context.Background(), "anything")

	var authErr *download.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "search", authErr.Operation)
}
