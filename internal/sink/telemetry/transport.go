package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defaultHTTPTimeout = 10 * time.Second

// httpTransport posts a Batch to the configured ingestion endpoint. A
// client-side rate.Limiter caps how fast it will re-issue requests,
// independent of (and in addition to) the reliable sink's own flush-queue
// delay — the limiter bounds the burst a post-outage flush can throw at the
// remote, the flush delay paces the drain itself.
type httpTransport struct {
	client   *http.Client
	endpoint string
	limiter  *rate.Limiter
}

func newHTTPTransport(endpoint string, limit rate.Limit, burst int) *httpTransport {
	if burst <= 0 {
		burst = 1
	}
	return &httpTransport{
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		endpoint: endpoint,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// SendRequest implements reliable.Transport[Batch].
func (t *httpTransport) SendRequest(ctx context.Context, batch Batch) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
