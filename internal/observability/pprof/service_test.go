package pprof

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "siftgram/pkg/logx"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", "/debug/pprof/"},
		{"  ", "/debug/pprof/"},
		{"/debug/pprof", "/debug/pprof/"},
		{"debug/pprof/", "/debug/pprof/"},
		{"/prof", "/prof/"},
	}
	for _, tt := range tests {
		if got := normalizePrefix(tt.in); got != tt.want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{":6060", false},
		{"192.168.1.5:6060", false},
		{"example.com:80", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := isLoopbackAddr(tt.addr); got != tt.want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestWithAuth(t *testing.T) {
	t.Parallel()

	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	roundtrip := func(h http.HandlerFunc, mutate func(*http.Request)) int {
		req := httptest.NewRequest(http.MethodGet, "http://x/healthz", nil)
		if mutate != nil {
			mutate(req)
		}
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec.Code
	}

	guarded := withAuth("secret", ok)
	if got := roundtrip(guarded, nil); got != http.StatusUnauthorized {
		t.Fatalf("no credentials: status = %d, want 401", got)
	}
	if got := roundtrip(guarded, func(r *http.Request) {
		q := r.URL.Query()
		q.Set("token", "secret")
		r.URL.RawQuery = q.Encode()
	}); got != http.StatusOK {
		t.Fatalf("query token: status = %d, want 200", got)
	}
	if got := roundtrip(guarded, func(r *http.Request) {
		q := r.URL.Query()
		q.Set("token", "wrong")
		r.URL.RawQuery = q.Encode()
	}); got != http.StatusUnauthorized {
		t.Fatalf("bad query token: status = %d, want 401", got)
	}
	if got := roundtrip(guarded, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer secret")
	}); got != http.StatusOK {
		t.Fatalf("bearer token: status = %d, want 200", got)
	}
	if got := roundtrip(guarded, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer nope")
	}); got != http.StatusUnauthorized {
		t.Fatalf("bad bearer: status = %d, want 401", got)
	}

	open := withAuth("  ", ok)
	if got := roundtrip(open, nil); got != http.StatusOK {
		t.Fatalf("blank token should disable auth, status = %d", got)
	}
}

func TestServerServesStateAndHealth(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, logx.Nop())
	s.RegisterState("pipeline", func() any {
		return map[string]int{"accepted": 3}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	waitFor(t, func() bool { return s.Addr() != "" })
	base := "http://" + s.Addr()
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp, err = client.Get(base + "/debug/state")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("state content type = %q", ct)
	}
	var state map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if _, ok := state["time"]; !ok {
		t.Fatal("state missing time field")
	}
	pl, ok := state["pipeline"].(map[string]any)
	if !ok {
		t.Fatalf("state missing pipeline provider: %v", state)
	}
	if got, _ := pl["accepted"].(float64); got != 3 {
		t.Fatalf("pipeline.accepted = %v, want 3", pl["accepted"])
	}

	s.Stop(context.Background())
	waitFor(t, func() bool { return s.Addr() == "" })
}

func TestServerRequiresToken(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret"}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	waitFor(t, func() bool { return s.Addr() != "" })
	client := &http.Client{Timeout: 2 * time.Second}
	base := "http://" + s.Addr()

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp, err = client.Get(fmt.Sprintf("%s/healthz?token=%s", base, "s3cret"))
	if err != nil {
		t.Fatalf("healthz with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", resp.StatusCode)
	}
}

func TestServeOnceRefusesInsecureBind(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop())
	err := s.serveOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "insecure") {
		t.Fatalf("serveOnce() = %v, want insecure bind refusal", err)
	}
}
