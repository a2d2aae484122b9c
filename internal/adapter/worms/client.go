// Package worms implements domain.Resolver against the WoRMS (World Register
// of Marine Species) REST API.
package worms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/oceanbio/occurrence-screening/internal/domain"
	"github.com/oceanbio/occurrence-screening/internal/observability"
)

// lsidNamespace is the registry domain used when synthesizing canonical
// identifiers for name matches.
const lsidNamespace = "marinespecies.org"

// Client resolves taxon identity via the WoRMS bulk endpoints. Batches are
// issued concurrently; a failed batch is logged and skipped, leaving its
// identifiers or names absent from the result map. No ordering is promised
// between batches.
type Client struct {
	baseURL    string
	httpClient *http.Client
	batchSize  int
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a WoRMS client. timeout bounds each batch request.
func NewClient(baseURL string, timeout time.Duration, batchSize int, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger,
	}
}

// aphiaRecord is a WoRMS bulk lookup record. valid_AphiaID is null for
// quarantined or deleted concepts.
type aphiaRecord struct {
	AphiaID      int    `json:"AphiaID"`
	ValidAphiaID *int   `json:"valid_AphiaID"`
	Phylum       string `json:"phylum"`
	Class        string `json:"class"`
	Rank         string `json:"rank"`
	MatchType    string `json:"match_type"`
}

// NormalizeIDs resolves reported identifiers to their registry records via
// AphiaRecordsByAphiaIDs, in concurrent batches of at most batchSize.
func (c *Client) NormalizeIDs(ctx context.Context, ids []int) (map[int]domain.TaxonRecord, error) {
	result := make(map[int]domain.TaxonRecord, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	c.runBatches(len(ids), func(lo, hi int) {
		batch := ids[lo:hi]
		records, err := c.fetchByIDs(ctx, batch)
		if err != nil {
			c.metrics.RegistryBatches.WithLabelValues("ids", "error").Inc()
			c.logger.Warn("aphia id batch failed, skipping",
				"batch_start", batch[0],
				"batch_size", len(batch),
				"error", err,
			)
			return
		}
		c.metrics.RegistryBatches.WithLabelValues("ids", "success").Inc()

		mu.Lock()
		defer mu.Unlock()
		for _, rec := range records {
			if rec == nil || rec.AphiaID == 0 {
				continue
			}
			tr := domain.TaxonRecord{
				AphiaID: rec.AphiaID,
				Phylum:  rec.Phylum,
				Class:   rec.Class,
				Rank:    rec.Rank,
			}
			if rec.ValidAphiaID != nil {
				tr.ValidAphiaID = *rec.ValidAphiaID
			}
			result[rec.AphiaID] = tr
		}
	})

	return result, ctx.Err()
}

// MatchNames resolves scientific names via AphiaRecordsByMatchNames. Only an
// exact match is accepted; the first exact candidate per name wins, and fuzzy
// or partial candidates are ignored entirely. Unmatched names have no entry.
func (c *Client) MatchNames(ctx context.Context, names []string) (map[string]domain.TaxonMatch, error) {
	result := make(map[string]domain.TaxonMatch, len(names))
	if len(names) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	c.runBatches(len(names), func(lo, hi int) {
		batch := names[lo:hi]
		candidates, err := c.fetchByNames(ctx, batch)
		if err != nil {
			c.metrics.RegistryBatches.WithLabelValues("names", "error").Inc()
			c.logger.Warn("name match batch failed, skipping",
				"batch_start", batch[0],
				"batch_size", len(batch),
				"error", err,
			)
			return
		}
		c.metrics.RegistryBatches.WithLabelValues("names", "success").Inc()

		mu.Lock()
		defer mu.Unlock()
		// The response is positionally aligned to the request batch.
		for i, perName := range candidates {
			if i >= len(batch) {
				break
			}
			for _, cand := range perName {
				if cand == nil || cand.MatchType != "exact" {
					continue
				}
				id := cand.AphiaID
				if cand.ValidAphiaID != nil && *cand.ValidAphiaID != 0 {
					id = *cand.ValidAphiaID
				}
				result[batch[i]] = domain.TaxonMatch{
					AphiaID: id,
					LSID:    fmt.Sprintf("urn:lsid:%s:taxname:%d", lsidNamespace, id),
					Phylum:  cand.Phylum,
					Class:   cand.Class,
					Rank:    cand.Rank,
				}
				break
			}
		}
	})

	return result, ctx.Err()
}

// runBatches fans out fn over [0,n) in chunks of batchSize and waits for all
// chunks. Batch N+1 does not depend on batch N, so order is irrelevant.
func (c *Client) runBatches(n int, fn func(lo, hi int)) {
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += c.batchSize {
		hi := lo + c.batchSize
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

func (c *Client) fetchByIDs(ctx context.Context, ids []int) ([]*aphiaRecord, error) {
	params := url.Values{}
	for _, id := range ids {
		params.Add("aphiaids[]", strconv.Itoa(id))
	}
	var records []*aphiaRecord
	if err := c.getJSON(ctx, "ids", c.baseURL+"/AphiaRecordsByAphiaIDs?"+params.Encode(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) fetchByNames(ctx context.Context, names []string) ([][]*aphiaRecord, error) {
	params := url.Values{
		"marine_only": {"false"},
		"extant_only": {"false"},
	}
	for _, name := range names {
		params.Add("scientificnames[]", name)
	}
	var candidates [][]*aphiaRecord
	if err := c.getJSON(ctx, "names", c.baseURL+"/AphiaRecordsByMatchNames?"+params.Encode(), &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (c *Client) getJSON(ctx context.Context, mode, fullURL string, out any) error {
	start := time.Now()
	defer func() {
		c.metrics.RegistryBatchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("worms request: %w", err)
	}
	defer resp.Body.Close()

	// WoRMS answers 204 when nothing in the batch resolves.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("worms API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
