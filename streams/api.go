package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/domo-pitchfork/go-pitchfork/auth"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultAPIHost is the public Domo API host.
const DefaultAPIHost = "https://api.domo.com"

const (
	userAgent      = "go-pitchfork"
	streamsPath    = "/v1/streams"
	contentTypeCSV = "text/csv"
)

// Transport issues the stream execution calls the upload client depends on.
type Transport interface {
	CreateExecution(ctx context.Context, streamID int64) (Execution, error)
	UploadPart(ctx context.Context, streamID, executionID, part int64, data []byte) (Execution, error)
	CommitExecution(ctx context.Context, streamID, executionID int64) (Execution, error)
	AbortExecution(ctx context.Context, streamID, executionID int64) (Execution, error)
}

// APIClientParams ...
type APIClientParams struct {
	// BaseURL defaults to DefaultAPIHost.
	BaseURL string
	Tokens  auth.TokenProvider
	// MaxRetries is the number of HTTP level retries per request. Zero
	// surfaces every failure to the caller directly.
	MaxRetries int
	Logger     log.Logger
}

// APIClient is the HTTP Transport for the Domo Streams API.
type APIClient struct {
	httpClient *retryablehttp.Client
	baseURL    string
	tokens     auth.TokenProvider
	logger     log.Logger
}

// NewAPIClient ...
func NewAPIClient(params APIClientParams) (*APIClient, error) {
	if params.Tokens == nil {
		return nil, errors.New("token provider is missing")
	}
	baseURL := params.BaseURL
	if baseURL == "" {
		baseURL = DefaultAPIHost
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	logger := params.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	httpClient := retryhttp.NewClient(logger)
	httpClient.RetryMax = params.MaxRetries
	httpClient.CheckRetry = createRetryPolicy(logger)

	return &APIClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tokens:     params.Tokens,
		logger:     logger,
	}, nil
}

func createRetryPolicy(logger log.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, reqErr error) (bool, error) {
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, reqErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; requestErr=%+v", retry, err, reqErr)
		return retry, err
	}
}

// CreateExecution starts a new execution on the stream.
func (c *APIClient) CreateExecution(ctx context.Context, streamID int64) (Execution, error) {
	var execution Execution
	path := fmt.Sprintf("%s/%d/executions", streamsPath, streamID)
	if err := c.send(ctx, http.MethodPost, path, nil, "application/json", &execution); err != nil {
		return Execution{}, err
	}
	return execution, nil
}

// UploadPart uploads one data part. Parts may arrive in any order.
func (c *APIClient) UploadPart(ctx context.Context, streamID, executionID, part int64, data []byte) (Execution, error) {
	var execution Execution
	path := fmt.Sprintf("%s/%d/executions/%d/part/%d", streamsPath, streamID, executionID, part)
	if data == nil {
		data = []byte{}
	}
	if err := c.send(ctx, http.MethodPut, path, data, contentTypeCSV, &execution); err != nil {
		return Execution{}, err
	}
	return execution, nil
}

// CommitExecution ...
func (c *APIClient) CommitExecution(ctx context.Context, streamID, executionID int64) (Execution, error) {
	execution := Execution{ID: executionID}
	path := fmt.Sprintf("%s/%d/executions/%d/commit", streamsPath, streamID, executionID)
	if err := c.send(ctx, http.MethodPut, path, nil, "", &execution); err != nil {
		return Execution{}, err
	}
	return execution, nil
}

// AbortExecution ...
func (c *APIClient) AbortExecution(ctx context.Context, streamID, executionID int64) (Execution, error) {
	execution := Execution{ID: executionID}
	path := fmt.Sprintf("%s/%d/executions/%d/abort", streamsPath, streamID, executionID)
	if err := c.send(ctx, http.MethodPut, path, nil, "", &execution); err != nil {
		return Execution{}, err
	}
	return execution, nil
}

// GetExecution ...
func (c *APIClient) GetExecution(ctx context.Context, streamID, executionID int64) (Execution, error) {
	var execution Execution
	path := fmt.Sprintf("%s/%d/executions/%d", streamsPath, streamID, executionID)
	if err := c.send(ctx, http.MethodGet, path, nil, "", &execution); err != nil {
		return Execution{}, err
	}
	return execution, nil
}

// ListExecutions ...
func (c *APIClient) ListExecutions(ctx context.Context, streamID int64, limit, offset int) ([]Execution, error) {
	var executions []Execution
	path := fmt.Sprintf("%s/%d/executions?%s", streamsPath, streamID, pageQuery(limit, offset))
	if err := c.send(ctx, http.MethodGet, path, nil, "", &executions); err != nil {
		return nil, err
	}
	return executions, nil
}

// GetStream ...
func (c *APIClient) GetStream(ctx context.Context, streamID int64) (Stream, error) {
	var stream Stream
	path := fmt.Sprintf("%s/%d", streamsPath, streamID)
	if err := c.send(ctx, http.MethodGet, path, nil, "", &stream); err != nil {
		return Stream{}, err
	}
	return stream, nil
}

// ListStreams ...
func (c *APIClient) ListStreams(ctx context.Context, limit, offset int) ([]Stream, error) {
	var streams []Stream
	path := fmt.Sprintf("%s?%s", streamsPath, pageQuery(limit, offset))
	if err := c.send(ctx, http.MethodGet, path, nil, "", &streams); err != nil {
		return nil, err
	}
	return streams, nil
}

func pageQuery(limit, offset int) string {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	if offset > 0 {
		query.Set("offset", fmt.Sprintf("%d", offset))
	}
	return query.Encode()
}

// send performs a request with a fresh bearer token and decodes a JSON
// response into out. An empty response body leaves out unchanged.
func (c *APIClient) send(ctx context.Context, method, path string, body []byte, contentType string, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("get access token: %w", err)
	}

	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, rawBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	dump, err := httputil.DumpRequest(req.Request, false)
	if err != nil {
		c.logger.Warnf("error while dumping request: %s", err)
	}
	c.logger.Debugf("Request dump: %s", string(dump))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf("%s", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unwrapError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(strings.TrimSpace(string(respBody))) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
