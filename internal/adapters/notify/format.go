package notify

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// displayTime renders an alert timestamp for notification bodies. A zero
// timestamp falls back to the current time.
func displayTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

// scoreDisplay renders a relevance score for notification bodies.
func scoreDisplay(score int) string {
	return fmt.Sprintf("%d/100", score)
}

// renderTextBody builds the plain-text email body for one alert.
func renderTextBody(payload model.AlertPayload, ackURL string) string {
	var b strings.Builder
	b.WriteString(payload.Title)
	b.WriteString("\n\n")
	b.WriteString("Relevance score: ")
	b.WriteString(scoreDisplay(payload.RelevanceScore))
	b.WriteByte('\n')
	b.WriteString("Source: ")
	b.WriteString(payload.SourceURL)
	b.WriteByte('\n')
	b.WriteString("Time: ")
	b.WriteString(displayTime(payload.Timestamp))
	b.WriteString("\n\n")
	b.WriteString(payload.Content)
	b.WriteByte('\n')
	if ackURL != "" {
		b.WriteString("\nAcknowledge this alert to stop further reminders:\n")
		b.WriteString(ackURL)
		b.WriteByte('\n')
	}
	return b.String()
}

// htmlBodyData feeds the HTML email template. Title and Content are
// scrape-derived and escaped by html/template.
type htmlBodyData struct {
	Title     string
	Content   string
	Score     string
	SourceURL string
	Time      string
	AckURL    string
}

var htmlBodyTemplate = template.Must(template.New("alert_email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 24px;">
    <h2 style="margin: 0 0 4px 0;">{{.Title}}</h2>
    <p style="margin: 0 0 16px 0; color: #888;">Relevance score {{.Score}}</p>
    <table style="border-collapse: collapse; margin: 0 0 16px 0;">
      <tr>
        <td style="padding: 4px 12px 4px 0; color: #888;">Source</td>
        <td style="padding: 4px 0;"><a href="{{.SourceURL}}">{{.SourceURL}}</a></td>
      </tr>
      <tr>
        <td style="padding: 4px 12px 4px 0; color: #888;">Time</td>
        <td style="padding: 4px 0;">{{.Time}}</td>
      </tr>
    </table>
    <p style="white-space: pre-line; margin: 0 0 24px 0;">{{.Content}}</p>
{{- if .AckURL}}
    <p>
      <a href="{{.AckURL}}" style="background: #2d6cdf; color: #fff; padding: 10px 18px; border-radius: 4px; text-decoration: none;">Acknowledge alert</a>
    </p>
{{- end}}
  </div>
</body>
</html>
`))

// renderHTMLBody builds the HTML email body for one alert.
func renderHTMLBody(payload model.AlertPayload, ackURL string) (string, error) {
	var b strings.Builder
	err := htmlBodyTemplate.Execute(&b, htmlBodyData{
		Title:     payload.Title,
		Content:   payload.Content,
		Score:     scoreDisplay(payload.RelevanceScore),
		SourceURL: payload.SourceURL,
		Time:      displayTime(payload.Timestamp),
		AckURL:    ackURL,
	})
	if err != nil {
		return "", fmt.Errorf("render alert email: %w", err)
	}
	return b.String(), nil
}
