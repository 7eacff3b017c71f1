package client

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grnrelay/grnrelay/pkg/command"
	"github.com/grnrelay/grnrelay/pkg/config"
	"github.com/grnrelay/grnrelay/pkg/errors"
)

func httpConfigFor(t *testing.T, server *httptest.Server) *config.Config {
	t.Helper()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := config.New()
	cfg.Connection.Host = u.Hostname()
	cfg.Connection.Port = port
	return cfg
}

func TestHTTPClientExecute(t *testing.T) {
	var gotPath, gotQuery, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotMethod = r.Method
		_, _ = w.Write([]byte(`[[0,1690000000.0,0.001],true]`))
	}))
	defer server.Close()

	c := NewHTTPClient(httpConfigFor(t, server))
	require.NoError(t, c.Start())
	defer func() { _ = c.Shutdown() }()

	resp, err := c.Execute("table_create", []command.Argument{
		{Name: "name", Value: "Users"},
		{Name: "flags", Value: "TABLE_NO_KEY"},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.OK())

	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "/d/table_create", gotPath)
	assert.Equal(t, "name=Users&flags=TABLE_NO_KEY", gotQuery)
}

func TestHTTPClientLoadPostsBody(t *testing.T) {
	var gotMethod, gotQuery, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		gotBody = string(body)
		_, _ = w.Write([]byte(`[[0,1690000000.0,0.001],1]`))
	}))
	defer server.Close()

	c := NewHTTPClient(httpConfigFor(t, server))
	require.NoError(t, c.Start())
	defer func() { _ = c.Shutdown() }()

	resp, err := c.Execute(command.LoadCommand, []command.Argument{
		{Name: "table", Value: "Users"},
		{Name: command.ValuesArgument, Value: `[{"name":"Alice"}]`},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "table=Users", gotQuery, "values must not appear in the query")
	assert.Equal(t, `[{"name":"Alice"}]`, gotBody)
}

func TestHTTPClientStateGuards(t *testing.T) {
	cfg := config.New()
	c := NewHTTPClient(cfg)

	_, err := c.Execute("status", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeState))

	require.NoError(t, c.Start())
	require.Error(t, c.Start())

	require.NoError(t, c.Shutdown())
	require.Error(t, c.Shutdown())

	_, err = c.Execute("status", nil)
	require.Error(t, err)
}

func TestHTTPClientConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	cfg := httpConfigFor(t, server)
	server.Close() // nothing listens anymore

	c := NewHTTPClient(cfg)
	require.NoError(t, c.Start())

	_, err := c.Execute("status", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}
