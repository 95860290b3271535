package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"
)

// waitForServer polls the given port until a TCP connection succeeds or timeout is reached.
// This provides a deterministic way to wait for server startup without arbitrary sleeps.
func waitForServer(t *testing.T, port int, timeout time.Duration) {
	t.Helper()

	addr := fmt.Sprintf("localhost:%d", port)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		// Brief sleep between attempts to avoid tight loop
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("server on port %d did not become ready within %v", port, timeout)
}

// decodeJSON decodes a JSON response body into a string map
func decodeJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON body: %v", err)
	}
	return body
}

// httpGet fetches a URL and decodes the JSON body, failing on non-200 status
func httpGet(t *testing.T, client *http.Client, target string) map[string]any {
	t.Helper()

	resp, err := client.Get(target)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s returned %d, want 200", target, resp.StatusCode)
	}
	return decodeJSON(t, resp.Body)
}
