// Package rank implements a generic batched top-k selector over numbered
// items, backed by an LLM. The selector is defensive: any backend failure or
// malformed response degrades to positional selection, and the result is
// always a valid index list of length at most k.
package rank

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"daybrief/internal/llm"
	"daybrief/internal/logger"
)

// DefaultBatchSize is the maximum number of items sent to the LLM per call.
const DefaultBatchSize = 10

// DefaultTimeout bounds each LLM call.
const DefaultTimeout = 30 * time.Second

// itemLineRegex matches a listing line that defines an item, e.g. "[3] Title".
var itemLineRegex = regexp.MustCompile(`^\[(\d+)\]\s+(.*)$`)

// Ranker selects the top-k items from a numbered listing.
type Ranker struct {
	backend llm.Generator
	timeout time.Duration
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithTimeout overrides the per-call LLM timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Ranker) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New builds a Ranker. backend may be nil, in which case every selection
// degrades to positional first-k.
func New(backend llm.Generator, opts ...Option) *Ranker {
	r := &Ranker{backend: backend, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// item is one parsed listing entry: the caller's index plus its display text.
type item struct {
	index int
	text  string
}

// RankItems returns the indices of the top k items in itemsText, a listing
// where each line "[N] text" defines item N. Items are reduced in batches of
// at most batchSize; promptTemplate may contain a %s verb that receives the
// renumbered batch listing. RankItems never fails: backend errors and
// malformed responses fall back to the first items in positional order.
func (r *Ranker) RankItems(ctx context.Context, itemsText, promptTemplate string, k, batchSize int) []int {
	items := parseItems(itemsText)
	if len(items) == 0 || k <= 0 {
		return nil
	}
	if len(items) <= k {
		return indices(items)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	current := items
	for len(current) > k {
		var next []item
		for start := 0; start < len(current); start += batchSize {
			end := start + batchSize
			if end > len(current) {
				end = len(current)
			}
			batch := current[start:end]
			if len(batch) <= k {
				next = append(next, batch...)
				continue
			}
			next = append(next, r.rankBatch(ctx, batch, promptTemplate, k)...)
		}

		if len(next) >= len(current) {
			// The round did not reduce the set; stop rather than loop.
			break
		}
		current = next
	}

	if len(current) > k {
		current = current[:k]
	}
	return indices(current)
}

// rankBatch asks the LLM to pick the top quota items from one batch. The
// batch is renumbered to 0..M-1 for the prompt and the response is mapped
// back to the callers' indices. Any failure selects the first quota items.
func (r *Ranker) rankBatch(ctx context.Context, batch []item, promptTemplate string, quota int) []item {
	if r.backend == nil {
		return batch[:quota]
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	response, err := r.backend.Generate(callCtx, buildPrompt(promptTemplate, batch, quota))
	if err != nil {
		logger.Warn("rank batch failed, keeping positional order", map[string]interface{}{
			"error": err.Error(),
			"batch": len(batch),
		})
		return batch[:quota]
	}

	picks := parseIndexArray(response, len(batch))
	if len(picks) == 0 {
		logger.Warn("rank response unparseable, keeping positional order", map[string]interface{}{
			"batch": len(batch),
		})
		return batch[:quota]
	}
	if len(picks) > quota {
		picks = picks[:quota]
	}

	selected := make([]item, 0, len(picks))
	for _, p := range picks {
		selected = append(selected, batch[p])
	}
	return selected
}

// buildPrompt renders the batch as a 0-based listing inside the template.
func buildPrompt(template string, batch []item, quota int) string {
	var b strings.Builder
	for i, it := range batch {
		fmt.Fprintf(&b, "[%d] %s\n", i, it.text)
	}
	listing := b.String()

	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, listing)
	}
	return fmt.Sprintf("%s\n\nSelect the top %d items. Respond with a JSON array of their numbers.\n\n%s", template, quota, listing)
}

// parseItems extracts "[N] text" lines from the listing. Lines that do not
// define an item are ignored.
func parseItems(itemsText string) []item {
	var items []item
	for _, line := range strings.Split(itemsText, "\n") {
		m := itemLineRegex.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		var idx int
		fmt.Sscanf(m[1], "%d", &idx)
		items = append(items, item{index: idx, text: m[2]})
	}
	return items
}

// parseIndexArray locates the first JSON array of integers in the response
// and returns its in-range, deduplicated values.
func parseIndexArray(response string, n int) []int {
	for start := strings.Index(response, "["); start >= 0; {
		end := strings.Index(response[start:], "]")
		if end < 0 {
			return nil
		}
		end += start

		var raw []int
		if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err == nil {
			seen := make(map[int]bool, len(raw))
			var picks []int
			for _, v := range raw {
				if v < 0 || v >= n || seen[v] {
					continue
				}
				seen[v] = true
				picks = append(picks, v)
			}
			return picks
		}

		next := strings.Index(response[start+1:], "[")
		if next < 0 {
			return nil
		}
		start += 1 + next
	}
	return nil
}

func indices(items []item) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.index
	}
	return out
}

// LabelCluster generates a short label for a cluster from its article
// titles. Unlike RankItems it surfaces failures, so callers can fall back to
// their own default.
func (r *Ranker) LabelCluster(ctx context.Context, titles []string) (string, error) {
	if r.backend == nil {
		return "", llm.ErrUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"These article titles cover one story. Reply with a short label for the story, at most 8 words, no quotes:\n\n%s",
		strings.Join(titles, "\n"),
	)
	label, err := r.backend.Generate(callCtx, prompt)
	if err != nil {
		return "", fmt.Errorf("labeling cluster: %w", err)
	}

	label = strings.TrimSpace(strings.Trim(strings.TrimSpace(label), `"`))
	if label == "" {
		return "", fmt.Errorf("labeling cluster: empty response")
	}
	return label, nil
}
