package model

// ScrapeRequest is the wire request to the scraping collaborator.
type ScrapeRequest struct {
	URL      string            `json:"url"`
	WaitTime int               `json:"wait_time"`
	Cookies  map[string]string `json:"cookies,omitempty"`
}

// ScrapeResult is the scraping collaborator's response.
type ScrapeResult struct {
	URL        string            `json:"url"`
	Content    string            `json:"content"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Cookies    map[string]string `json:"cookies,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
}

// ContentPreviewLength bounds the scraped-content excerpt carried in telemetry
// stage data.
const ContentPreviewLength = 500

// ContentPreview returns the first ContentPreviewLength characters of the
// scraped content.
func (r *ScrapeResult) ContentPreview() string {
	runes := []rune(r.Content)
	if len(runes) <= ContentPreviewLength {
		return r.Content
	}
	return string(runes[:ContentPreviewLength])
}

// AnalysisRequest is the wire request to the analysis collaborator.
type AnalysisRequest struct {
	Content   string `json:"content"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
	Model     string `json:"model,omitempty"`
}

// AnalysisResult is the analysis collaborator's response after tolerant
// decoding. Numeric fields are clamped at the boundary: relevance score to
// [0,100], confidence to [0,1]. Title and summary are bounded, key points
// capped at ten.
type AnalysisResult struct {
	RelevanceScore int      `json:"relevance_score"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"key_points,omitempty"`
	Confidence     float64  `json:"confidence"`
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
}
