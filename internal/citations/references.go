package citations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defaultReferenceAPIURL = "https://api.semanticscholar.org/graph/v1/paper/arXiv:%s/references?fields=externalIds&limit=500"

// ReferenceClient fetches a paper's reference list from the citation service.
// Calls are rate limited with an inter-call delay and bounded by a per-call
// timeout.
type ReferenceClient struct {
	http    *http.Client
	apiURL  string
	timeout time.Duration
	limiter *rate.Limiter
}

// ReferenceOption configures a ReferenceClient.
type ReferenceOption func(*ReferenceClient)

// WithReferenceHTTPClient injects the HTTP client, for tests.
func WithReferenceHTTPClient(c *http.Client) ReferenceOption {
	return func(r *ReferenceClient) { r.http = c }
}

// WithReferenceAPIURL overrides the API URL template, for tests.
func WithReferenceAPIURL(url string) ReferenceOption {
	return func(r *ReferenceClient) { r.apiURL = url }
}

// WithReferenceTimeout overrides the per-call timeout.
func WithReferenceTimeout(d time.Duration) ReferenceOption {
	return func(r *ReferenceClient) {
		if d > 0 {
			r.timeout = d
			r.http.Timeout = d
		}
	}
}

// WithReferenceDelay overrides the minimum delay between calls.
func WithReferenceDelay(d time.Duration) ReferenceOption {
	return func(r *ReferenceClient) {
		if d > 0 {
			r.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// NewReferenceClient builds a client with a 30s timeout and a 500ms
// inter-call delay.
func NewReferenceClient(opts ...ReferenceOption) *ReferenceClient {
	r := &ReferenceClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		apiURL:  defaultReferenceAPIURL,
		timeout: 30 * time.Second,
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// referenceResponse mirrors the citation service's reference listing.
type referenceResponse struct {
	Data []struct {
		CitedPaper struct {
			ExternalIDs struct {
				ArXiv string `json:"ArXiv"`
			} `json:"externalIds"`
		} `json:"citedPaper"`
	} `json:"data"`
}

// References returns the arXiv IDs a paper cites. References without an
// arXiv ID are dropped. The call waits for the rate limiter before hitting
// the service.
func (r *ReferenceClient) References(ctx context.Context, arxivID string) ([]string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, fmt.Sprintf(r.apiURL, arxivID), nil)
	if err != nil {
		return nil, fmt.Errorf("building reference request for %s: %w", arxivID, err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching references for %s: %w", arxivID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Unknown to the service: an empty reference list, not an error.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reference API returned status %d for %s", resp.StatusCode, arxivID)
	}

	var parsed referenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing references for %s: %w", arxivID, err)
	}

	seen := make(map[string]bool)
	var cited []string
	for _, ref := range parsed.Data {
		id := ExtractArxivID(ref.CitedPaper.ExternalIDs.ArXiv)
		if id == "" || id == arxivID || seen[id] {
			continue
		}
		seen[id] = true
		cited = append(cited, id)
	}
	return cited, nil
}
