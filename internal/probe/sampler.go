package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/gridironlabs/draftpulse/internal/latency"
)

// DefaultTimeout bounds a single probe request. The sampler itself mandates
// no timeout semantics beyond what the HTTP client enforces.
const DefaultTimeout = 10 * time.Second

// MeasurementError reports a failed probe: the caller obtained no sample and
// decides whether to retry, log, or skip. The sampler never retries.
type MeasurementError struct {
	URL        string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *MeasurementError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("latency probe to %s failed: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("latency probe to %s failed: %v", e.URL, e.Err)
}

func (e *MeasurementError) Unwrap() error {
	return e.Err
}

// healthResponse is the optional body a probed endpoint may return. Only the
// timestamp is interesting; anything else in the body is ignored.
type healthResponse struct {
	TimestampMS *int64 `json:"timestamp_ms"`
}

// Sampler produces one latency.Measurement per probe by timing an HTTP round
// trip to a lightweight health endpoint.
type Sampler struct {
	client *http.Client
	clock  clockwork.Clock
}

// NewSampler creates a sampler with its own HTTP client and the real clock.
func NewSampler(timeout time.Duration) *Sampler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewSamplerWithClock(&http.Client{Timeout: timeout}, clockwork.NewRealClock())
}

// NewSamplerWithClock creates a sampler with an injected client and clock.
func NewSamplerWithClock(client *http.Client, clock clockwork.Clock) *Sampler {
	return &Sampler{client: client, clock: clock}
}

// Measure times a single round trip to endpointURL. On success it returns a
// measurement whose RTT is the elapsed time between dispatch and response
// receipt; if the response body carries a timestamp_ms field it is recorded
// as the server's clock. On any transport error or non-2xx status it returns
// a *MeasurementError and no measurement - failed probes must never reach a
// tracker.
func (s *Sampler) Measure(ctx context.Context, endpointURL string) (latency.Measurement, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL, nil)
	if err != nil {
		return latency.Measurement{}, &MeasurementError{URL: endpointURL, Err: fmt.Errorf("create request: %w", err)}
	}

	t0 := s.clock.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return latency.Measurement{}, &MeasurementError{URL: endpointURL, Err: err}
	}
	t1 := s.clock.Now()
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return latency.Measurement{}, &MeasurementError{URL: endpointURL, StatusCode: resp.StatusCode}
	}

	m := latency.Measurement{
		RoundTripTimeMS:   float64(t1.Sub(t0)) / float64(time.Millisecond),
		ClientTimestampMS: t0.UnixMilli(),
	}

	// The body is an opaque liveness payload; a missing or malformed
	// timestamp is not a measurement failure.
	body, err := io.ReadAll(resp.Body)
	if err == nil && len(body) > 0 {
		var hr healthResponse
		if err := json.Unmarshal(body, &hr); err == nil {
			m.ServerTimestampMS = hr.TimestampMS
		}
	}

	return m, nil
}
