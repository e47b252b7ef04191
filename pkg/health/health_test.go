package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func call(t *testing.T, handler http.HandlerFunc) (int, statusBody) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func runN(h *Health, n int) {
	for _, p := range h.probes {
		for range n {
			p.run(context.Background())
		}
	}
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("Passing", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("goroutines", time.Second, passing)
		runN(h, 1)

		code, body := call(t, h.LiveEndpoint)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
		assert.Empty(t, body.Checks)
	})

	t.Run("BelowThreshold", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("flaky", time.Second, failing("temporary"))
		runN(h, FailureThreshold-1)

		code, _ := call(t, h.LiveEndpoint)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("Failing", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("db", time.Second, failing("connection refused"))
		runN(h, FailureThreshold)

		code, body := call(t, h.LiveEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "connection refused", body.Checks["db"])
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("NotMarkedReady", func(t *testing.T) {
		h := New()
		code, body := call(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, body.Checks, "_readiness")
	})

	t.Run("ReadyThenDraining", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("storage", time.Second, passing)
		h.SetReady(true)

		code, _ := call(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, h.IsReady())

		h.SetReady(false)
		code, _ = call(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.False(t, h.IsReady())
	})

	t.Run("OneFailing", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("storage", time.Second, passing)
		h.AddReadinessCheck("persist", time.Second, failing("cart: disk full"))
		h.AddLivenessCheck("ignored", time.Second, failing("not a readiness check"))
		h.SetReady(true)
		runN(h, FailureThreshold)

		code, body := call(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, map[string]string{"persist": "cart: disk full"}, body.Checks)
		assert.False(t, h.IsReady())
	})
}

func TestProbe_Recovers(t *testing.T) {
	var broken = true
	h := New()
	h.AddReadinessCheck("storage", time.Second, func(context.Context) error {
		if broken {
			return errors.New("down")
		}
		return nil
	})
	h.SetReady(true)

	runN(h, FailureThreshold)
	assert.False(t, h.IsReady())

	broken = false
	runN(h, 1)
	assert.True(t, h.IsReady())
}

func TestStartStop(t *testing.T) {
	h := New()
	ran := make(chan struct{}, 1)
	h.AddLivenessCheck("tick", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), time.Hour)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("check did not run on start")
	}

	h.Stop()
	h.Stop()
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	require.Error(t, GoroutineCountCheck(0)(ctx))

	require.NoError(t, LastErrorCheck(map[string]func() error{
		"cart": func() error { return nil },
	})(ctx))

	err := LastErrorCheck(map[string]func() error{
		"cart":   func() error { return nil },
		"orders": func() error { return errors.New("disk full") },
	})(ctx)
	require.EqualError(t, err, "orders: disk full")
}
