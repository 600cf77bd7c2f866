package calendar

import (
	"fmt"
	"strings"
	"time"
)

var dayNamesID = []string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}

var shortTitles = []struct{ match, short string }{
	{"Non-Farm", "NFP"},
	{"Unemployment", "Unemp"},
	{"Interest Rate", "Interest"},
	{"CPI", "CPI"},
	{"GDP", "GDP"},
	{"Retail", "Retail"},
	{"Jobless", "Jobless"},
}

// Format renders the compact news section appended to price messages.
// Returns the empty string when there is nothing to show.
func Format(events []Event, now time.Time) string {
	if len(events) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n📅 USD News\n")
	for _, ev := range events {
		wib := roundToFiveMinutes(ev.Date.In(jakartaTZ))
		b.WriteString(fmt.Sprintf("• %s %02d:%02d", dayNamesID[wib.Weekday()], wib.Hour(), wib.Minute()))

		if status := relativeStatus(ev.Date, now); status != "" {
			b.WriteString(" (" + status + ")")
		}
		b.WriteString(" " + shortTitle(ev.Title))

		switch {
		case ev.Actual != "" && ev.Actual != "-":
			b.WriteString(fmt.Sprintf(" %s>%s", ev.Actual, ev.Forecast))
			switch ClassifyGoldImpact(ev) {
			case ImpactGood:
				b.WriteString(" 🟢 BAGUS")
			case ImpactBad:
				b.WriteString(" 🔴 JELEK")
			}
		case ev.Forecast != "" && ev.Forecast != "-":
			b.WriteString(" F:" + ev.Forecast)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func shortTitle(title string) string {
	for _, st := range shortTitles {
		if strings.Contains(title, st.match) {
			return st.short
		}
	}
	return title
}

func roundToFiveMinutes(t time.Time) time.Time {
	return t.Round(5 * time.Minute)
}

// relativeStatus renders time-until for upcoming events and time-since for
// recently released ones.
func relativeStatus(eventTime, now time.Time) string {
	diff := now.Sub(eventTime)
	switch {
	case diff < 0:
		until := -diff
		h := int(until.Hours())
		m := int(until.Minutes()) % 60
		if h == 0 {
			return fmt.Sprintf("⏰%dm", m)
		}
		if m == 0 {
			return fmt.Sprintf("⏰%dj", h)
		}
		return fmt.Sprintf("⏰%dj %dm", h, m)
	case diff <= 3*time.Hour:
		h := int(diff.Hours())
		m := int(diff.Minutes()) % 60
		if h == 0 {
			return fmt.Sprintf("✅%dm lalu", m)
		}
		return fmt.Sprintf("✅%dj %dm lalu", h, m)
	default:
		return ""
	}
}
