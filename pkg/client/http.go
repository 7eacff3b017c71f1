package client

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grnrelay/grnrelay/pkg/command"
	"github.com/grnrelay/grnrelay/pkg/config"
	"github.com/grnrelay/grnrelay/pkg/errors"
	"github.com/grnrelay/grnrelay/pkg/logger"
	"github.com/grnrelay/grnrelay/pkg/metrics"
)

// HTTPClient talks to a remote, already-running engine over its HTTP
// endpoint. The connection is established lazily on the first Execute and
// reused through a tuned transport.
type HTTPClient struct {
	cfg    *config.Config
	logger *zap.Logger

	httpClient *http.Client
	baseURL    string
	started    bool
	stopped    bool
}

// NewHTTPClient creates an HTTP client from configuration
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		cfg: cfg,
		logger: logger.Get().With(
			zap.String("component", "http_client"),
			zap.String("host", cfg.Connection.Host),
			zap.Int("port", cfg.Connection.Port),
		),
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Connection.Host, cfg.Connection.Port),
	}
}

// Start marks the client usable. The connection itself is lazy.
func (c *HTTPClient) Start() error {
	if c.started {
		return errors.New(errors.ErrorTypeState, "http client already started")
	}
	c.started = true
	c.logger.Info("http client started", zap.String("base_url", c.baseURL))
	return nil
}

// ensureClient builds the underlying http.Client on first use
func (c *HTTPClient) ensureClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   c.cfg.Timeouts.Connection,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: c.cfg.Timeouts.Request,
		ExpectContinueTimeout: 1 * time.Second,
	}

	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   c.cfg.Timeouts.Request,
	}
	return c.httpClient
}

// Execute issues one command synchronously and decodes the reply envelope
func (c *HTTPClient) Execute(name string, args []command.Argument) (*Response, error) {
	if !c.started || c.stopped {
		return nil, errors.New(errors.ErrorTypeState, "http client is not running")
	}

	cmd := command.New(name, args...)
	line := cmd.EncodeLine()
	url := c.baseURL + line

	var (
		httpResp *http.Response
		err      error
	)
	if body := cmd.Body(); body != nil {
		payload := strings.Join(body, "\n")
		httpResp, err = c.ensureClient().Post(url, "application/json", strings.NewReader(payload))
	} else {
		httpResp, err = c.ensureClient().Get(url)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "engine request failed").
			WithDetail("request", line)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read engine reply").
			WithDetail("request", line)
	}

	metrics.CommandsExecuted.WithLabelValues(name).Inc()

	resp, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("engine reply",
		zap.String("request", line),
		zap.Int("code", resp.Code),
		zap.Int("status", httpResp.StatusCode))

	return resp, nil
}

// Shutdown releases idle connections
func (c *HTTPClient) Shutdown() error {
	if !c.started {
		return errors.New(errors.ErrorTypeState, "http client was never started")
	}
	if c.stopped {
		return errors.New(errors.ErrorTypeState, "http client already shut down")
	}
	c.stopped = true

	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	c.logger.Info("http client shut down")
	return nil
}
