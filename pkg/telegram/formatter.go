package telegram

import (
	"fmt"
	"strings"
	"time"
)

// ConvictionAlert holds the fields rendered into a high-conviction alert.
type ConvictionAlert struct {
	Symbol      string
	Score       float64
	SignalLabel string
	NetAction   string
	Regime      string
}

// FormatConvictionAlertMessage renders one high-conviction score alert.
func FormatConvictionAlertMessage(at time.Time, a ConvictionAlert) string {
	var b strings.Builder
	b.WriteString("*High Conviction Signal*\n")
	b.WriteString(fmt.Sprintf("Ticker: `%s`\n", a.Symbol))
	b.WriteString(fmt.Sprintf("DCS: *%.1f* (%s)\n", a.Score, a.SignalLabel))
	b.WriteString(fmt.Sprintf("Net action: %s\n", a.NetAction))
	b.WriteString(fmt.Sprintf("Regime: %s\n", a.Regime))
	b.WriteString(fmt.Sprintf("Time: %s", at.Format("2006-01-02 15:04:05")))
	return b.String()
}

// FormatSellReviewAlertMessage renders a sell-review alert for one ticker.
func FormatSellReviewAlertMessage(at time.Time, symbol string, criteria []string) string {
	var b strings.Builder
	b.WriteString("*Sell Review Required*\n")
	b.WriteString(fmt.Sprintf("Ticker: `%s`\n", symbol))
	b.WriteString(fmt.Sprintf("Criteria met: %s\n", strings.Join(criteria, ", ")))
	b.WriteString(fmt.Sprintf("Time: %s", at.Format("2006-01-02 15:04:05")))
	return b.String()
}

// FormatRunSummaryMessage renders the end-of-run summary.
func FormatRunSummaryMessage(at time.Time, runID string, scored, failed, skipped int, regime string) string {
	var b strings.Builder
	b.WriteString("*Scoring Run Completed*\n")
	b.WriteString(fmt.Sprintf("Run: `%s`\n", runID))
	b.WriteString(fmt.Sprintf("Scored: %d, Failed: %d, Skipped: %d\n", scored, failed, skipped))
	b.WriteString(fmt.Sprintf("Regime: %s\n", regime))
	b.WriteString(fmt.Sprintf("Time: %s", at.Format("2006-01-02 15:04:05")))
	return b.String()
}

// FormatErrorAlertMessage renders an operational failure alert.
func FormatErrorAlertMessage(at time.Time, message string) string {
	return fmt.Sprintf("*Scoring Service Error*\n%s\nTime: %s", message, at.Format("2006-01-02 15:04:05"))
}
