package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
)

type fakeCredentials struct {
	mu      sync.Mutex
	access  string
	refresh string
	sets    int
	cleared bool
}

func (f *fakeCredentials) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access
}

func (f *fakeCredentials) RefreshToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh
}

func (f *fakeCredentials) SetTokens(access, refresh string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = access
	f.refresh = refresh
	f.sets++
}

func (f *fakeCredentials) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = ""
	f.refresh = ""
	f.cleared = true
}

type recordingNotifier struct {
	mu       sync.Mutex
	titles   []string
	messages []string
	confirm  bool
}

func (n *recordingNotifier) Notify(_ context.Context, title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) Confirm(context.Context, string) bool { return n.confirm }

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.titles)
}

func newTestClient(t *testing.T, handler http.Handler, creds *fakeCredentials, notifier Notifier, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(server.URL, creds, notifier, opts...)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return client
}

func TestDo_SuccessPassesThroughUnchanged(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	var gotAuth, gotRequestID string
	r.Get("/rooms", func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		gotRequestID = req.Header.Get("X-Request-Id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1}]`))
	})

	creds := &fakeCredentials{access: "access-1", refresh: "refresh-1"}
	notifier := &recordingNotifier{}
	client := newTestClient(t, r, creds, notifier)

	res, err := client.Do(context.Background(), http.MethodGet, "rooms", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if gotAuth != "Bearer access-1" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("expected a request id header")
	}
	if creds.sets != 0 || creds.cleared {
		t.Fatal("a 2xx call must not touch stored credentials")
	}
	if notifier.count() != 0 {
		t.Fatal("a 2xx call must not notify")
	}
}

func TestDo_RefreshRetriesOnceWithNewCredential(t *testing.T) {
	t.Parallel()

	var calls, refreshes int32
	r := chi.NewRouter()
	r.Post("/auth/refresh", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		var body map[string]string
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body["refreshToken"] != "refresh-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessToken":  "access-2",
			"refreshToken": "refresh-2",
		})
	})
	var retryAuth string
	r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		retryAuth = req.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	})

	creds := &fakeCredentials{access: "access-1", refresh: "refresh-1"}
	notifier := &recordingNotifier{}
	client := newTestClient(t, r, creds, notifier)

	res, err := client.Do(context.Background(), http.MethodGet, "events", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Body.Close()

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", got)
	}
	if got := atomic.LoadInt32(&refreshes); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
	if retryAuth != "Bearer access-2" {
		t.Fatalf("retry must carry the new credential, got %q", retryAuth)
	}
	if creds.AccessToken() != "access-2" || creds.RefreshToken() != "refresh-2" {
		t.Fatal("both credentials must be replaced after refresh")
	}
}

func TestDo_MissingRefreshCredentialClearsSessionWithoutRetry(t *testing.T) {
	t.Parallel()

	var calls int32
	r := chi.NewRouter()
	r.Get("/events", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	creds := &fakeCredentials{access: "access-1"}
	notifier := &recordingNotifier{}
	expired := false
	client := newTestClient(t, r, creds, notifier, WithExpiredHandler(func(context.Context) { expired = true }))

	_, err := client.Do(context.Background(), http.MethodGet, "events", nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected no retry, got %d calls", got)
	}
	if !creds.cleared {
		t.Fatal("session state must be cleared")
	}
	if !expired {
		t.Fatal("forced re-login hook must run")
	}
}

func TestDo_RefreshFailureNotifiesAndClears(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/events", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r.Post("/auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	creds := &fakeCredentials{access: "access-1", refresh: "refresh-1"}
	notifier := &recordingNotifier{}
	client := newTestClient(t, r, creds, notifier)

	_, err := client.Do(context.Background(), http.MethodGet, "events", nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if !creds.cleared {
		t.Fatal("session state must be cleared after refresh failure")
	}
	if notifier.count() != 1 || notifier.titles[0] != "Ошибка обновления сессии" {
		t.Fatalf("expected a refresh failure notification, got %v", notifier.titles)
	}
}

func TestDo_SecondUnauthorizedAfterRefreshIsHardFailure(t *testing.T) {
	t.Parallel()

	var refreshes int32
	r := chi.NewRouter()
	r.Get("/events", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r.Post("/auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessToken":  "access-2",
			"refreshToken": "refresh-2",
		})
	})

	creds := &fakeCredentials{access: "access-1", refresh: "refresh-1"}
	notifier := &recordingNotifier{}
	client := newTestClient(t, r, creds, notifier)

	_, err := client.Do(context.Background(), http.MethodGet, "events", nil, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected a 401 StatusError, got %v", err)
	}
	if got := atomic.LoadInt32(&refreshes); got != 1 {
		t.Fatalf("expected no second refresh, got %d", got)
	}
}

func TestDo_StructuredErrorMessageSurfaced(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Post("/events", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"Кабинет уже занят"}`))
	})

	creds := &fakeCredentials{access: "access-1", refresh: "refresh-1"}
	notifier := &recordingNotifier{}
	client := newTestClient(t, r, creds, notifier)

	_, err := client.Do(context.Background(), http.MethodPost, "events", nil, map[string]int{"lessonNumber": 1})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusConflict || statusErr.Message != "Кабинет уже занят" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
	if notifier.count() != 1 || notifier.messages[0] != "Кабинет уже занят" {
		t.Fatalf("expected the backend message to be surfaced, got %v", notifier.messages)
	}
}

func TestDo_FallbackStatusMessage(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/events", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream blew up"))
	})

	creds := &fakeCredentials{access: "access-1"}
	notifier := &recordingNotifier{}
	client := newTestClient(t, r, creds, notifier)

	_, err := client.Do(context.Background(), http.MethodGet, "events", nil, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if !strings.Contains(statusErr.Message, "502") {
		t.Fatalf("expected the fallback message to carry the status, got %q", statusErr.Message)
	}
}

func TestDo_ConnectivityFailureNotifiedNotRetried(t *testing.T) {
	t.Parallel()

	creds := &fakeCredentials{access: "access-1", refresh: "refresh-1"}
	notifier := &recordingNotifier{}
	client, err := New("http://127.0.0.1:1", creds, notifier)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	_, err = client.Do(context.Background(), http.MethodGet, "events", nil, nil)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if notifier.count() != 1 || notifier.titles[0] != "Ошибка сети" {
		t.Fatalf("expected a connectivity notification, got %v", notifier.titles)
	}
	if creds.cleared || creds.sets != 0 {
		t.Fatal("connectivity failures must not touch credentials")
	}
}

func TestDo_ConcurrentUnauthorizedTriggersSingleRefresh(t *testing.T) {
	t.Parallel()

	var refreshes int32
	r := chi.NewRouter()
	r.Post("/auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessToken":  "access-2",
			"refreshToken": "refresh-2",
		})
	})
	r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer access-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	creds := &fakeCredentials{access: "access-1", refresh: "refresh-1"}
	notifier := &recordingNotifier{}
	client := newTestClient(t, r, creds, notifier)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := client.Do(context.Background(), http.MethodGet, "events", url.Values{}, nil)
			if err == nil {
				res.Body.Close()
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d failed: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&refreshes); got != 1 {
		t.Fatalf("expected concurrent 401s to share one refresh, got %d", got)
	}
}
