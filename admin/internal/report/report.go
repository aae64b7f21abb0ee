// Package report formats vitals panels for terminals and Slack.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/malbeclabs/webvitals/api/vitals"
	"github.com/slack-go/slack"
)

// Page is one rendered page in a report.
type Page struct {
	URL   string
	Like  bool
	Panel vitals.Panel
}

func (p Page) title() string {
	if p.Like {
		return p.URL + " (LIKE)"
	}
	return p.URL
}

// FormatValue renders a percentile in the metric's natural precision.
func FormatValue(r vitals.Reading) string {
	if !r.Available {
		return "n/a"
	}
	if r.Metric == vitals.MetricCLS {
		return strconv.FormatFloat(r.Percentile, 'f', 3, 64)
	}
	return strconv.FormatFloat(r.Percentile, 'f', 0, 64) + "ms"
}

// WriteText writes a plain-text report.
func WriteText(w io.Writer, pages []Page) error {
	for i, p := range pages {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s\n", p.title()); err != nil {
			return err
		}
		if p.Panel.State != vitals.StateReady {
			if _, err := fmt.Fprintf(w, "  %s\n", panelMessage(p.Panel)); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "  samples: %d\n", p.Panel.Total); err != nil {
			return err
		}
		for _, r := range p.Panel.Readings {
			if _, err := fmt.Fprintf(w, "  %-4s %-10s %-18s good=%d needs_improvement=%d poor=%d\n",
				r.Metric, FormatValue(r), r.Style.Label, r.Buckets[0], r.Buckets[1], r.Buckets[2]); err != nil {
				return err
			}
		}
	}
	return nil
}

func panelMessage(p vitals.Panel) string {
	if p.Message != "" {
		return p.Message
	}
	return string(p.State)
}

// WebhookMessage builds a Slack message with one attachment per page,
// colored by the worst level among its readings.
func WebhookMessage(pages []Page) *slack.WebhookMessage {
	msg := &slack.WebhookMessage{Text: fmt.Sprintf("Core Web Vitals report for %d page(s)", len(pages))}

	for _, p := range pages {
		att := slack.Attachment{Title: p.title()}
		if p.Panel.State != vitals.StateReady {
			att.Text = panelMessage(p.Panel)
			msg.Attachments = append(msg.Attachments, att)
			continue
		}

		worst := vitals.LevelGood
		var lines []string
		for _, r := range p.Panel.Readings {
			if r.Available && r.Level > worst {
				worst = r.Level
			}
			att.Fields = append(att.Fields, slack.AttachmentField{
				Title: string(r.Metric),
				Value: fmt.Sprintf("%s (%s)", FormatValue(r), r.Style.Label),
				Short: true,
			})
			lines = append(lines, fmt.Sprintf("%s %d/%d/%d", r.Metric, r.Buckets[0], r.Buckets[1], r.Buckets[2]))
		}
		att.Color = vitals.DefaultStyles.For(worst).Color
		att.Footer = fmt.Sprintf("%d samples · %s", p.Panel.Total, strings.Join(lines, " · "))
		msg.Attachments = append(msg.Attachments, att)
	}
	return msg
}
