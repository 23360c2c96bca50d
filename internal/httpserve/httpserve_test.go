package httpserve

import (
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fuselang/fuse/internal/rtcore"
)

func startServer(t *testing.T, maxRequests int, dispatch rtcore.Dispatcher) (string, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- New().serve(ln, maxRequests, dispatch) }()
	return "http://" + ln.Addr().String(), done
}

func TestServeDispatchesAndStops(t *testing.T) {
	url, done := startServer(t, 1, func(verb, path string, req rtcore.RouteRequest) rtcore.RouteResult {
		if verb != "GET" || path != "/hello" {
			t.Errorf("dispatched %s %s", verb, path)
		}
		return rtcore.RouteResult{Status: 200, Body: []byte(`"hi"`)}
	})

	resp, err := http.Get(url + "/hello")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type: %q", ct)
	}
	if string(body) != `"hi"` {
		t.Errorf("body: %s", body)
	}

	// FUSE_MAX_REQUESTS-style bound: the loop returns after one request.
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after maxRequests")
	}
}

func TestServeForwardsStatusAndBody(t *testing.T) {
	url, done := startServer(t, 1, func(verb, path string, req rtcore.RouteRequest) rtcore.RouteResult {
		return rtcore.RouteResult{Status: 404, Body: []byte(`{"error":{"code":"not_found","message":"no"}}`)}
	})
	resp, err := http.Get(url + "/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "not_found") {
		t.Errorf("body: %s", body)
	}
	<-done
}

func TestServePassesRequestBody(t *testing.T) {
	var gotBody string
	var hadBody bool
	url, done := startServer(t, 1, func(verb, path string, req rtcore.RouteRequest) rtcore.RouteResult {
		gotBody = string(req.Body)
		hadBody = req.HasBody
		return rtcore.RouteResult{Status: 200, Body: []byte(`true`)}
	})
	resp, err := http.Post(url+"/u", "application/json", strings.NewReader(`{"name":"ada"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	<-done
	if !hadBody || gotBody != `{"name":"ada"}` {
		t.Errorf("body: %q hasBody=%t", gotBody, hadBody)
	}
}
