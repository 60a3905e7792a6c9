package screener

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDoPost(t *testing.T) {
	var gotBody, gotCT, gotUA, gotReferer string
	var gotCookies []*http.Cookie

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotCT = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		gotCookies = r.Cookies()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL,
		WithUserAgent("test-agent"),
		WithCookies([]Cookie{
			{Name: "session", Value: "abc"},
			{Name: "elsewhere", Value: "x", Domain: ".other.example"},
		}),
	)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Referer", srv.URL+screenerPagePath)
	resp, err := client.Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    srv.URL + screenerAPIPath,
		Header: header,
		Body:   []byte(`{"page":1}`),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, `{"page":1}`, gotBody)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, srv.URL+screenerPagePath, gotReferer)
	require.Len(t, gotCookies, 1)
	assert.Equal(t, "session", gotCookies[0].Name)
	assert.Equal(t, "abc", gotCookies[0].Value)
}

func TestClientDoNonSuccessIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`blocked`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL + metricsAPIPath})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "blocked", string(resp.Body))
}

func TestClientDoTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(url, WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = client.Do(context.Background(), Request{Method: http.MethodGet, URL: url + metricsAPIPath})
	assert.Error(t, err)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not a url")
	assert.Error(t, err)
}
