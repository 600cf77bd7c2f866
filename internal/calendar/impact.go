package calendar

import (
	"regexp"
	"strconv"
	"strings"
)

// GoldImpact classifies how a released figure is expected to move gold.
type GoldImpact int

const (
	ImpactUnknown GoldImpact = iota
	ImpactGood               // weakens USD, supportive for gold
	ImpactBad                // strengthens USD, pressure on gold
)

var numericPattern = regexp.MustCompile(`-?[0-9]+(\.[0-9]+)?`)

// Higher-than-forecast readings that strengthen the dollar are bad for gold;
// readings signalling a weaker economy or higher inflation are good.
var impactRules = []struct {
	keywords     []string
	higherIsGood bool
}{
	{[]string{"interest rate", "fed", "fomc"}, false},
	{[]string{"non-farm", "nfp", "payroll"}, false},
	{[]string{"unemployment"}, true},
	{[]string{"cpi", "inflation", "pce"}, true},
	{[]string{"gdp"}, false},
	{[]string{"jobless", "claims"}, true},
	{[]string{"retail sales"}, false},
}

// ClassifyGoldImpact compares actual vs forecast for indicators with a known
// directional relationship to gold. Returns ImpactUnknown when either figure
// is absent or the indicator is not recognised.
func ClassifyGoldImpact(ev Event) GoldImpact {
	actual, ok := parseFigure(ev.Actual)
	if !ok {
		return ImpactUnknown
	}
	forecast, ok := parseFigure(ev.Forecast)
	if !ok {
		return ImpactUnknown
	}

	title := strings.ToLower(ev.Title)
	for _, rule := range impactRules {
		for _, kw := range rule.keywords {
			if !strings.Contains(title, kw) {
				continue
			}
			higher := actual > forecast
			if higher == rule.higherIsGood {
				return ImpactGood
			}
			return ImpactBad
		}
	}
	return ImpactUnknown
}

func parseFigure(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return 0, false
	}
	match := numericPattern.FindString(strings.ReplaceAll(raw, ",", ""))
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
