// Command healthcheck probes a local relaygate for container health checks.
// It exits 0 when the gateway answers its health endpoint with an ok status.
// With -strict a degraded gateway (stalled traces) is reported unhealthy.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const defaultAddr = "127.0.0.1:8080"

type healthBody struct {
	Status        string `json:"status"`
	StalledTraces int    `json:"stalled_traces"`
}

func main() {
	strict := flag.Bool("strict", false, "treat a degraded gateway as unhealthy")
	timeout := flag.Duration("timeout", 2*time.Second, "probe timeout")
	flag.Parse()

	url := fmt.Sprintf("http://%s/api/v1/health", normalizeAddr(os.Getenv("RELAYGATE_LISTEN_ADDR")))
	if err := check(url, *timeout, *strict); err != nil {
		fmt.Fprintln(os.Stderr, "unhealthy:", err)
		os.Exit(1)
	}
}

func check(url string, timeout time.Duration, strict bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var body healthBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}

	switch body.Status {
	case "ok":
		return nil
	case "degraded":
		if strict {
			return fmt.Errorf("degraded: %d stalled traces", body.StalledTraces)
		}
		return nil
	default:
		return fmt.Errorf("unexpected health status %q", body.Status)
	}
}

// normalizeAddr points the probe at loopback when the gateway binds all
// interfaces, since the probe runs inside the same container.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
