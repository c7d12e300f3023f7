package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompox/patchbay/domain/model"
)

var testEndpoints = model.BackendEndpoints{HealthPath: "/health", CommandPath: "/command", UndoPath: "/undo"}

func target(url string) model.BackendTarget {
	return model.BackendTarget{BaseURL: url, Endpoints: testEndpoints}
}

func TestCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/command", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req model.BackendRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "add a cube", req.Command.Instruction)
		assert.Equal(t, "be brief", req.System)
		_, _ = w.Write([]byte(`{"success":true,"patch_id":"p1","patch":{"ops":1},"tokens_used":12,"etag":"e1"}`))
	}))
	defer srv.Close()

	c := New()
	resp, err := c.Command(context.Background(), target(srv.URL), &model.BackendRequest{
		Command: &model.CommandEnvelope{Instruction: "add a cube"},
		System:  "be brief",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "p1", resp.PatchID)
	assert.Equal(t, int64(12), resp.TokensUsed)
	assert.Equal(t, "e1", resp.ETag)
	assert.True(t, resp.HasPatch())
	assert.NotEmpty(t, resp.Raw)
}

func TestCommandNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New().Command(context.Background(), target(srv.URL), &model.BackendRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrBackend))
	assert.False(t, model.IsRetryable(err))

	var me *model.Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, http.StatusInternalServerError, me.Details["status_code"])
}

func TestCommandConnectionRefusedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New().Command(context.Background(), target(url), &model.BackendRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrBackend))
	assert.True(t, model.IsRetryable(err), "failure before send should be retryable")
}

func TestCommandTimeoutAfterSendIsNotRetryable(t *testing.T) {
	hold := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-hold:
		}
	}))
	defer srv.Close()
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := New().Command(ctx, target(srv.URL), &model.BackendRequest{})
	require.Error(t, err)
	assert.False(t, model.IsRetryable(err))

	var me *model.Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, true, me.Details["request_sent"])
}

func TestCommandResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"message":"` + strings.Repeat("x", 64) + `"}`))
	}))
	defer srv.Close()

	_, err := New(WithMaxResponseBytes(32)).Command(context.Background(), target(srv.URL), &model.BackendRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrBackend))
}

func TestHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New()
	assert.NoError(t, c.Health(context.Background(), target(srv.URL)))
	healthy.Store(false)
	assert.Error(t, c.Health(context.Background(), target(srv.URL)))
}

func TestUndo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.UndoRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "p1", req.PatchID)
		assert.Equal(t, "e1", req.ETag)
		_, _ = w.Write([]byte(`{"success":true,"message":"reverted"}`))
	}))
	defer srv.Close()

	res, err := New().Undo(context.Background(), target(srv.URL), &model.UndoRequest{PatchID: "p1", ETag: "e1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "reverted", res.Message)
}

func TestUndoWithoutEndpoint(t *testing.T) {
	tg := model.BackendTarget{BaseURL: "http://127.0.0.1:1", Endpoints: model.BackendEndpoints{CommandPath: "/c"}}
	_, err := New().Undo(context.Background(), tg, &model.UndoRequest{PatchID: "p"})
	assert.True(t, errors.Is(err, model.ErrUndoUnsupported))
}
