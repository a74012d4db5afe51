package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/klaimedis/engine/internal/domain"
)

const (
	// maxReplyCandidates caps how many normalization candidates a reply
	// may carry; anything beyond it is discarded.
	maxReplyCandidates = 5
	// maxReplyBytes bounds how much of a provider reply is read.
	maxReplyBytes = 1 << 20
)

// ClientConfig configures the HTTP provider client.
type ClientConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RateLimit     rate.Limit
	RateBurst     int
	MaxCandidates int
}

// Client talks to the AI normalization provider over HTTP.
type Client struct {
	config  ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *logrus.Logger
}

// NewClient creates a provider client.
func NewClient(config ClientConfig, logger *logrus.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 10
	}
	if config.RateBurst <= 0 {
		config.RateBurst = int(config.RateLimit)
	}
	if config.MaxCandidates <= 0 || config.MaxCandidates > maxReplyCandidates {
		config.MaxCandidates = maxReplyCandidates
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(config.RateLimit, config.RateBurst),
		log:     logger,
	}
}

type normalizeRequest struct {
	Term          string `json:"term"`
	Domain        string `json:"domain"`
	MaxCandidates int    `json:"max_candidates"`
}

// NormalizeTerm asks the provider for candidate canonical names for a
// free-text term. The reply is schema-validated; a malformed reply is an
// error, never a partial result.
func (c *Client) NormalizeTerm(ctx context.Context, term, domain string) (*NormalizationReply, error) {
	body, err := c.post(ctx, "/v1/normalize", normalizeRequest{
		Term:          term,
		Domain:        domain,
		MaxCandidates: c.config.MaxCandidates,
	})
	if err != nil {
		return nil, err
	}

	reply, err := parseNormalizationReply(body)
	if err != nil {
		c.log.WithError(err).WithField("term", term).Warn("Rejected malformed normalization reply")
		return nil, err
	}
	return reply, nil
}

type batchRequest struct {
	Items []BatchItem `json:"items"`
}

// ClassifyBatch sends all items in one request and returns the validated
// per-index results. Missing or invalid result rows are simply absent
// from the reply; the orchestrator fills those indexes with fallbacks.
func (c *Client) ClassifyBatch(ctx context.Context, items []BatchItem) (*BatchReply, error) {
	body, err := c.post(ctx, "/v1/classify-batch", batchRequest{Items: items})
	if err != nil {
		return nil, err
	}

	reply, err := parseBatchReply(body, items)
	if err != nil {
		c.log.WithError(err).WithField("items", len(items)).Warn("Rejected malformed batch reply")
		return nil, err
	}
	return reply, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.config.BaseURL, "/")+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading provider reply: %w", err)
	}
	return body, nil
}

// parseNormalizationReply validates a raw normalization reply. Candidates
// with empty names or out-of-range likelihoods are rejected wholesale:
// a provider that violates the schema once is not trusted for the rest
// of the reply.
func parseNormalizationReply(body []byte) (*NormalizationReply, error) {
	var raw struct {
		Candidates []struct {
			Name       string  `json:"name"`
			Likelihood float64 `json:"likelihood"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding normalization reply: %w: %v", domain.ErrMalformedReply, err)
	}

	reply := &NormalizationReply{}
	for _, cand := range raw.Candidates {
		if strings.TrimSpace(cand.Name) == "" {
			return nil, fmt.Errorf("normalization candidate with empty name: %w", domain.ErrMalformedReply)
		}
		if cand.Likelihood < 0 || cand.Likelihood > 1 {
			return nil, fmt.Errorf("normalization candidate likelihood %v out of range: %w", cand.Likelihood, domain.ErrMalformedReply)
		}
		reply.Candidates = append(reply.Candidates, NormalizationCandidate{
			Name:       strings.TrimSpace(cand.Name),
			Likelihood: cand.Likelihood,
		})
	}

	sort.SliceStable(reply.Candidates, func(i, j int) bool {
		return reply.Candidates[i].Likelihood > reply.Candidates[j].Likelihood
	})
	if len(reply.Candidates) > maxReplyCandidates {
		reply.Candidates = reply.Candidates[:maxReplyCandidates]
	}
	return reply, nil
}

// parseBatchReply validates a raw batch reply against the request items.
// Item indexes carry the caller's original positions and may be sparse, so
// rows are checked against the requested index set, never a 0..n-1 range.
// Rows with unknown indexes or classifications are dropped; duplicate
// indexes keep the first row.
func parseBatchReply(body []byte, items []BatchItem) (*BatchReply, error) {
	var raw struct {
		Results []struct {
			Index          int    `json:"index"`
			Classification string `json:"classification"`
			Restriction    string `json:"restriction"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding batch reply: %w: %v", domain.ErrMalformedReply, err)
	}

	requested := make(map[int]bool, len(items))
	for _, item := range items {
		requested[item.Index] = true
	}

	seen := make(map[int]bool, len(raw.Results))
	reply := &BatchReply{}
	for _, res := range raw.Results {
		if !requested[res.Index] || seen[res.Index] {
			continue
		}
		if !validClassification(res.Classification) {
			continue
		}
		seen[res.Index] = true
		reply.Results = append(reply.Results, BatchResult{
			Index:          res.Index,
			Classification: res.Classification,
			Restriction:    strings.TrimSpace(res.Restriction),
		})
	}
	return reply, nil
}

func validClassification(c string) bool {
	switch c {
	case "listed", "restricted", "unlisted":
		return true
	default:
		return false
	}
}
