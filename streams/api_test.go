package streams

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/domo-pitchfork/go-pitchfork/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method      string
	path        string
	query       string
	auth        string
	contentType string
	body        string
}

type fakeDomo struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeDomo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method:      r.Method,
		path:        r.URL.Path,
		query:       r.URL.RawQuery,
		auth:        r.Header.Get("Authorization"),
		contentType: r.Header.Get("Content-Type"),
		body:        string(body),
	})
	f.mu.Unlock()
	f.handler(w, r)
}

func newTestAPIClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*APIClient, *fakeDomo) {
	domo := &fakeDomo{handler: handler}
	server := httptest.NewServer(domo)
	t.Cleanup(server.Close)

	client, err := NewAPIClient(APIClientParams{
		BaseURL: server.URL,
		Tokens:  auth.StaticToken("test-token"),
		Logger:  log.NewLogger(),
	})
	require.NoError(t, err)
	return client, domo
}

func TestAPIClient_ExecutionLifecycle(t *testing.T) {
	client, domo := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/streams/5706/executions":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":7,"startedAt":"2024-01-01T00:00:00Z","currentState":"ACTIVE"}`))
		case "/v1/streams/5706/executions/7/part/1":
			_, _ = w.Write([]byte(`{"id":7,"currentState":"ACTIVE"}`))
		case "/v1/streams/5706/executions/7/commit":
			_, _ = w.Write([]byte(`{"id":7,"currentState":"SUCCESS","endedAt":"2024-01-01T00:01:00Z"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	created, err := client.CreateExecution(ctx, 5706)
	require.NoError(t, err)
	assert.Equal(t, int64(7), created.ID)
	assert.Equal(t, "ACTIVE", created.CurrentState)

	_, err = client.UploadPart(ctx, 5706, 7, 1, []byte("a,b\nc,d\n"))
	require.NoError(t, err)

	committed, err := client.CommitExecution(ctx, 5706, 7)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", committed.CurrentState)
	assert.Equal(t, "2024-01-01T00:01:00Z", committed.EndedAt)

	require.Len(t, domo.requests, 3)
	assert.Equal(t, http.MethodPost, domo.requests[0].method)
	assert.Equal(t, http.MethodPut, domo.requests[1].method)
	assert.Equal(t, "text/csv", domo.requests[1].contentType)
	assert.Equal(t, "a,b\nc,d\n", domo.requests[1].body)
	assert.Equal(t, http.MethodPut, domo.requests[2].method)
	for _, req := range domo.requests {
		assert.Equal(t, "Bearer test-token", req.auth)
	}
}

func TestAPIClient_AbortToleratesEmptyBody(t *testing.T) {
	client, domo := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	execution, err := client.AbortExecution(context.Background(), 5706, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), execution.ID)
	require.Len(t, domo.requests, 1)
	assert.Equal(t, "/v1/streams/5706/executions/9/abort", domo.requests[0].path)
	assert.Equal(t, http.MethodPut, domo.requests[0].method)
}

func TestAPIClient_ErrorStatus(t *testing.T) {
	client, _ := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"message":"Not Found"}`))
	})

	_, err := client.GetExecution(context.Background(), 5706, 1)
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "Not Found")
	assert.True(t, IsNotFound(err))
}

func TestAPIClient_ServerErrorNotRetriedByDefault(t *testing.T) {
	client, domo := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.UploadPart(context.Background(), 5706, 1, 1, []byte("x\n"))
	require.Error(t, err)
	assert.Len(t, domo.requests, 1)
}

func TestAPIClient_ListEndpoints(t *testing.T) {
	client, domo := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/streams":
			_, _ = w.Write([]byte(`[{"id":1,"updateMethod":"APPEND","dataSet":{"id":"abc","name":"Sales","rows":10,"columns":2}}]`))
		case "/v1/streams/1":
			_, _ = w.Write([]byte(`{"id":1,"updateMethod":"REPLACE","lastExecution":{"id":3,"currentState":"SUCCESS"}}`))
		case "/v1/streams/1/executions":
			_, _ = w.Write([]byte(`[{"id":3},{"id":4}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	streams, err := client.ListStreams(ctx, 50, 10)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, "Sales", streams[0].DataSet.Name)
	assert.Equal(t, "limit=50&offset=10", domo.requests[0].query)

	stream, err := client.GetStream(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, stream.LastExecution)
	assert.Equal(t, int64(3), stream.LastExecution.ID)

	executions, err := client.ListExecutions(ctx, 1, 0, 0)
	require.NoError(t, err)
	assert.Len(t, executions, 2)
	assert.Equal(t, "", domo.requests[2].query)
}

func TestAPIClient_TokenError(t *testing.T) {
	client, domo := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client.tokens = auth.StaticToken("")

	_, err := client.CreateExecution(context.Background(), 1)
	require.Error(t, err)
	assert.Empty(t, domo.requests)
}

func TestNewAPIClient_Validation(t *testing.T) {
	_, err := NewAPIClient(APIClientParams{})
	assert.Error(t, err)

	client, err := NewAPIClient(APIClientParams{Tokens: auth.StaticToken("t"), BaseURL: "https://example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", client.baseURL)
}
