package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ontoforge/ontoforge/pkg/bundle"
	"github.com/ontoforge/ontoforge/pkg/model"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func testClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithTokenProvider(StaticTokenProvider("test-token")),
		WithHTTPClient(srv.Client()),
		WithSleep(noSleep),
	}
	c, err := NewClient(Config{
		BaseURL:     srv.URL,
		WorkspaceID: "ws-1",
		RateRequests: 1000,
		RatePer:      time.Second,
	}, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func testDefinition(t *testing.T) *bundle.Definition {
	t.Helper()
	e := &model.EntityType{ID: "1", Name: "Thing"}
	d, err := bundle.Build(&model.ConversionResult{EntityTypes: []*model.EntityType{e}}, "x")
	require.NoError(t, err)
	return d
}

func TestCircuitBreaker_StateMachine(t *testing.T) {
	cb := NewCircuitBreaker(2, 2, 10*time.Second)
	clock := time.Unix(1000, 0)
	cb.now = func() time.Time { return clock }

	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	require.Equal(t, BreakerClosed, cb.State())
	cb.RecordFailure()
	require.Equal(t, BreakerOpen, cb.State())

	var open *CircuitOpenError
	err := cb.Allow()
	require.ErrorAs(t, err, &open)
	require.Equal(t, 10*time.Second, open.Remaining)

	clock = clock.Add(4 * time.Second)
	err = cb.Allow()
	require.ErrorAs(t, err, &open)
	require.Equal(t, 6*time.Second, open.Remaining)

	// Recovery timeout elapsed: half-open admits a probe.
	clock = clock.Add(7 * time.Second)
	require.NoError(t, cb.Allow())
	require.Equal(t, BreakerHalfOpen, cb.State())

	// A failure in half-open reopens immediately.
	cb.RecordFailure()
	require.Equal(t, BreakerOpen, cb.State())

	clock = clock.Add(11 * time.Second)
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	require.Equal(t, BreakerHalfOpen, cb.State())
	cb.RecordSuccess()
	require.Equal(t, BreakerClosed, cb.State())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.Reset()
	require.Equal(t, BreakerClosed, cb.State())
	require.NoError(t, cb.Allow())
}

func TestCircuitBreaker_SuccessClearsStreak(t *testing.T) {
	cb := NewCircuitBreaker(3, 1, time.Second)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, BreakerClosed, cb.State())
}

func TestRateLimiter_BlocksAndCounts(t *testing.T) {
	l := NewRateLimiter(50, time.Second, 2)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	elapsed := time.Since(start)

	stats := l.Stats()
	require.Equal(t, int64(3), stats.Total)
	require.GreaterOrEqual(t, stats.Waited, int64(1))
	require.Greater(t, stats.TotalWait, time.Duration(0))
	// Two tokens of burst are free; the third waits roughly one interval.
	require.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	l := NewRateLimiter(1, time.Hour, 1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Acquire(ctx))
}

func TestClient_RetryHonorsRetryAfter(t *testing.T) {
	var hits atomic.Int32
	var sleeps []time.Duration
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": []Item{{ID: "o1", DisplayName: "One"}}})
	}))
	defer srv.Close()

	c := testClient(t, srv, WithSleep(func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}))

	items, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int32(3), hits.Load())
	require.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, sleeps)
}

func TestClient_PermanentErrorDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorCode": "InvalidDefinition", "message": "bad bundle"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.List(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "InvalidDefinition", apiErr.ErrorCode)
	require.Equal(t, int32(1), hits.Load())
}

func TestClient_BreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		BaseURL:          srv.URL,
		WorkspaceID:      "ws-1",
		RateRequests:     1000,
		RatePer:          time.Second,
		FailureThreshold: 2,
		RecoveryTimeout:  time.Hour,
	},
		WithTokenProvider(StaticTokenProvider("t")),
		WithHTTPClient(srv.Client()),
		WithSleep(noSleep))
	require.NoError(t, err)

	_, err = c.List(context.Background())
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	// The breaker tripped after the threshold; later attempts never reached
	// the server.
	require.Equal(t, int32(2), hits.Load())
	require.Equal(t, BreakerOpen, c.Breaker().State())

	_, err = c.List(context.Background())
	require.ErrorAs(t, err, &open)
	require.Equal(t, int32(2), hits.Load())
}

func TestClient_GetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errorCode": "ItemNotFound", "message": "nope"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClient_AuthorizationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": []Item{}})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.List(context.Background())
	require.NoError(t, err)
}

func TestClient_ListPagination(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			require.Empty(t, r.URL.Query().Get("continuationToken"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"value":             []Item{{ID: "a"}},
				"continuationToken": "page2",
			})
			return
		}
		require.Equal(t, "page2", r.URL.Query().Get("continuationToken"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": []Item{{ID: "b"}}})
	}))
	defer srv.Close()

	items, err := testClient(t, srv).List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "a", items[0].ID)
	require.Equal(t, "b", items[1].ID)
}

func TestClient_UpsertSwitchesToUpdateOnConflict(t *testing.T) {
	def := testDefinition(t)
	existing := Item{ID: "o-9", DisplayName: "Plant"}
	var created, updated atomic.Int32
	var listCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /workspaces/ws-1/ontologies", func(w http.ResponseWriter, r *http.Request) {
		// Empty on the first listing; the item appears once the concurrent
		// writer has won the race.
		if listCalls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": []Item{}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": []Item{existing}})
	})
	mux.HandleFunc("POST /workspaces/ws-1/ontologies", func(w http.ResponseWriter, r *http.Request) {
		created.Add(1)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"errorCode": "ItemDisplayNameAlreadyInUse", "message": "taken"}`))
	})
	mux.HandleFunc("POST /workspaces/ws-1/ontologies/o-9/updateDefinition", func(w http.ResponseWriter, r *http.Request) {
		updated.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	item, err := testClient(t, srv).CreateOrUpdate(context.Background(), "Plant", "", def, false)
	require.NoError(t, err)
	require.Equal(t, "o-9", item.ID)
	require.Equal(t, int32(1), created.Load())
	require.Equal(t, int32(1), updated.Load())
}

func TestClient_CreateFollowsLRO(t *testing.T) {
	def := testDefinition(t)
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /workspaces/ws-1/ontologies", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/operations/op-1")
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /operations/op-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "Running"})
			return
		}
		w.Header().Set("Location", "http://"+r.Host+"/operations/op-1/result")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "Succeeded"})
	})
	mux.HandleFunc("GET /operations/op-1/result", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Item{ID: "o-1", DisplayName: "Plant"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var sleeps []time.Duration
	c := testClient(t, srv, WithSleep(func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}))

	item, err := c.Create(context.Background(), "Plant", "desc", def)
	require.NoError(t, err)
	require.Equal(t, "o-1", item.ID)
	require.Equal(t, int32(2), polls.Load())
	// Every poll waited the server-specified interval.
	require.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeps)
}

func TestClient_LROFailureSurfacesServerError(t *testing.T) {
	def := testDefinition(t)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /workspaces/ws-1/ontologies", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/operations/op-2")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /operations/op-2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "Failed",
			"error":  map[string]string{"errorCode": "DefinitionInvalid", "message": "entity 12 unresolved"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := testClient(t, srv).Create(context.Background(), "Plant", "", def)
	require.ErrorIs(t, err, ErrOperationFailed)
	require.Contains(t, err.Error(), "entity 12 unresolved")
}

func TestClient_LROCancellationIsPrompt(t *testing.T) {
	def := testDefinition(t)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /workspaces/ws-1/ontologies", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/operations/op-3")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Real context-aware sleeping: a 30s poll interval must not delay
	// cancellation.
	c := testClient(t, srv, WithSleep(sleepCtx))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := c.Create(ctx, "Plant", "", def)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}

func TestClient_GetDefinition(t *testing.T) {
	def := testDefinition(t)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /workspaces/ws-1/ontologies/o-1/getDefinition", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"definition": def})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := testClient(t, srv).GetDefinition(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, def.Parts, got.Parts)
	require.Equal(t, def.Hash(), got.Hash())
}

func TestSanitizeDisplayName(t *testing.T) {
	require.Equal(t, "Plant_Floor_3", SanitizeDisplayName("Plant Floor 3"))
	long := SanitizeDisplayName("x" + string(make([]byte, 200)))
	require.LessOrEqual(t, len(long), 90)
	require.Regexp(t, `^[A-Za-z][A-Za-z0-9_]{0,89}$`, SanitizeDisplayName("9 plants & más"))
}

func TestTokenProvider_CachesUntilSkewWindow(t *testing.T) {
	var fetches atomic.Int32
	expiry := time.Unix(10000, 0)
	p := newCachedProvider(func(context.Context) (string, time.Time, error) {
		fetches.Add(1)
		return "tok", expiry, nil
	})
	clock := expiry.Add(-time.Hour)
	p.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		tok, err := p.Token(context.Background())
		require.NoError(t, err)
		require.Equal(t, "tok", tok)
	}
	require.Equal(t, int32(1), fetches.Load())

	// Inside the five-minute skew window the token refreshes.
	clock = expiry.Add(-4 * time.Minute)
	_, err := p.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), fetches.Load())
}

func TestNewTokenProvider_StaticTokenBeatsFallbacks(t *testing.T) {
	t.Setenv(EnvStaticToken, "static-token")
	p, err := NewTokenProvider(Credentials{UseInteractiveAuth: true})
	require.NoError(t, err)
	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "static-token", tok)
}

func TestNewTokenProvider_InteractiveBranch(t *testing.T) {
	// Construction must not open a browser; the flow engages only at the
	// first token request.
	t.Setenv(EnvStaticToken, "")
	p, err := NewTokenProvider(Credentials{UseInteractiveAuth: true})
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestNewTokenProvider_EndsAtPlatformDefault(t *testing.T) {
	t.Setenv(EnvStaticToken, "")
	p, err := NewTokenProvider(Credentials{})
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(&APIError{StatusCode: 429}))
	require.True(t, IsTransient(&APIError{StatusCode: 503}))
	require.False(t, IsTransient(&APIError{StatusCode: 400}))
	require.False(t, IsTransient(&CircuitOpenError{}))
	require.False(t, IsTransient(context.Canceled))
	require.True(t, IsTransient(errors.New("connection reset")))
}
