// Package jupiter integrates the Jupiter price and swap-quote APIs.
// All reads go through the request coordinator so concurrent lookups
// of the same token or route collapse into a single upstream call.
package jupiter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

const providerName = "jupiter"

// getJSON performs a GET and decodes the JSON body into out. Non-2xx
// responses and transport failures come back as *resilience.FetchError
// so the retry classifier can branch on the status code.
func getJSON(client *http.Client, req *http.Request, op string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &resilience.FetchError{Provider: providerName, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &resilience.FetchError{
			Provider:   providerName,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &resilience.FetchError{Provider: providerName, Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
