// Package analyze provides the HTTP client for the analysis collaborator.
//
// The collaborator normally answers with a well-formed JSON object, but its
// scoring model occasionally wraps the object in prose or a fenced code
// block. The client decodes tolerantly: any JSON object carrying a numeric
// relevance_score satisfies, wherever it sits in the response body.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/adapters/svcauth"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/domain/model"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
)

const (
	// maxResponseBytes bounds how much of the analyzer response is read.
	maxResponseBytes = 1 << 20

	// maxTitleLength and maxSummaryLength bound the extracted fields.
	maxTitleLength   = 200
	maxSummaryLength = 1000

	// maxKeyPoints caps the extracted key point list.
	maxKeyPoints = 10

	// fallbackTitle stands in when the scored object carries no title.
	fallbackTitle = "Analysis Result"
)

// fencedBlockRe matches a JSON object or array inside a fenced code block.
var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*([\\[{].*?[\\]}])\\s*```")

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// ClientOptions groups dependencies for the analyze client.
type ClientOptions struct {
	Config      config.AnalyzerConfig
	Credentials svcauth.Credentials // Optional: service-to-service auth
	Evaluator   JMESPathEvaluator   // Optional: defaults to go-jmespath
	HTTPClient  *http.Client        // Optional: defaults to a client with the configured timeout
	Logger      *slog.Logger        // Optional: structured logger
}

// Client calls the analysis collaborator's /analyze endpoint.
type Client struct {
	baseURL   string
	model     string
	maxTokens int
	creds     svcauth.Credentials
	jems      JMESPathEvaluator
	http      *http.Client
	logger    *slog.Logger
}

var _ core.Analyzer = (*Client)(nil)

// NewClient constructs a new analyze client.
func NewClient(opts ClientOptions) (*Client, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if cfg.BaseURL == "" {
		return nil, errors.New("analyzer base URL is required")
	}

	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		creds:     opts.Credentials,
		jems:      jems,
		http:      hc,
		logger:    logger.With("component", "analyze_client"),
	}, nil
}

// Analyze scores content against a prompt. The returned result is clamped and
// bounded; a response with success=false is a result, not an error.
func (c *Client) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.creds != nil {
		if err := c.creds.Apply(ctx, httpReq); err != nil {
			return nil, fmt.Errorf("authenticate analysis request: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "analyzer unreachable")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("close analyzer response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read analysis response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Unavailablef("analyzer returned %d: %s", resp.StatusCode, trimForError(raw))
	}

	result, err := c.parseAnalysis(raw)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "content analyzed",
		"relevance_score", result.RelevanceScore,
		"success", result.Success,
		"duration", time.Since(start))

	return result, nil
}

// parseAnalysis extracts the scored object from the response body. The whole
// body is tried first; prose and fenced blocks are searched when that fails.
func (c *Client) parseAnalysis(raw []byte) (*model.AnalysisResult, error) {
	text := strings.TrimSpace(string(raw))

	if obj, ok := decodeObject(text); ok {
		if c.hasScore(obj) {
			return c.buildResult(obj), nil
		}
		// A well-formed failure report carries success=false and no score.
		if success, isBool := obj["success"].(bool); isBool && !success {
			return &model.AnalysisResult{Error: c.stringField(obj, "error")}, nil
		}
	}

	for _, obj := range embeddedObjects(text) {
		if c.hasScore(obj) {
			return c.buildResult(obj), nil
		}
	}

	return nil, apperrors.Internalf("no relevance score in analyzer response (%d bytes)", len(raw))
}

// buildResult maps one scored object into a clamped AnalysisResult.
func (c *Client) buildResult(obj map[string]any) *model.AnalysisResult {
	result := &model.AnalysisResult{
		RelevanceScore: clampInt(c.intField(obj, "relevance_score"), 0, 100),
		Title:          truncateRunes(c.stringField(obj, "title"), maxTitleLength),
		Summary:        truncateRunes(c.stringField(obj, "summary"), maxSummaryLength),
		KeyPoints:      c.stringListField(obj, "key_points", maxKeyPoints),
		Confidence:     clampFloat(c.floatField(obj, "confidence"), 0, 1),
		Success:        true,
		Error:          c.stringField(obj, "error"),
	}
	if result.Title == "" {
		result.Title = fallbackTitle
	}
	if success, isBool := obj["success"].(bool); isBool && !success {
		result.Success = false
	}
	return result
}

func (c *Client) hasScore(obj map[string]any) bool {
	v, err := c.jems.Evaluate("relevance_score", obj)
	if err != nil || v == nil {
		return false
	}
	_, ok := toNumber(v)
	return ok
}

func (c *Client) stringField(obj map[string]any, expr string) string {
	v, err := c.jems.Evaluate(expr, obj)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func (c *Client) intField(obj map[string]any, expr string) int {
	v, err := c.jems.Evaluate(expr, obj)
	if err != nil {
		return 0
	}
	f, ok := toNumber(v)
	if !ok {
		return 0
	}
	return int(f)
}

func (c *Client) floatField(obj map[string]any, expr string) float64 {
	v, err := c.jems.Evaluate(expr, obj)
	if err != nil {
		return 0
	}
	f, _ := toNumber(v)
	return f
}

func (c *Client) stringListField(obj map[string]any, expr string, limit int) []string {
	v, err := c.jems.Evaluate(expr, obj)
	if err != nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, min(len(items), limit))
	for _, item := range items {
		if len(out) == limit {
			break
		}
		if s, isString := item.(string); isString {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// decodeObject parses text as one JSON value. An array decodes to its first
// object element.
func decodeObject(text string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	if arr, ok := v.([]any); ok && len(arr) > 0 {
		v = arr[0]
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// embeddedObjects collects JSON objects found inside the text: fenced code
// blocks first, then bare objects in prose.
func embeddedObjects(text string) []map[string]any {
	var out []map[string]any

	for _, match := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		if obj, ok := decodeObject(match[1]); ok {
			out = append(out, obj)
		}
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		obj, end, ok := decodeObjectAt(text, i)
		if !ok {
			continue
		}
		out = append(out, obj)
		i = end
	}

	return out
}

// decodeObjectAt decodes one JSON object starting at text[start], ignoring
// whatever follows it. Returns the index just past the object.
func decodeObjectAt(text string, start int) (map[string]any, int, bool) {
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, start, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, start, false
	}
	return obj, start + int(dec.InputOffset()), true
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func trimForError(raw []byte) string {
	const limit = 512
	s := string(bytes.TrimSpace(raw))
	if len(s) > limit {
		return s[:limit]
	}
	if s == "" {
		return "no response body"
	}
	return s
}
