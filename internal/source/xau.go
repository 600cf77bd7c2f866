package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// HTTPOptions parameterise a scraping/JSON source.
type HTTPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// TradingViewXAU reads the XAU/USD close from the TradingView scanner API.
type TradingViewXAU struct {
	opts   HTTPOptions
	client *http.Client
}

// NewTradingViewXAU constructs the scanner source.
func NewTradingViewXAU(opts HTTPOptions) *TradingViewXAU {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://scanner.tradingview.com/symbol"
	}
	return &TradingViewXAU{opts: opts, client: newHTTPClient(opts.Timeout)}
}

func (s *TradingViewXAU) Name() string { return "tradingview" }

func (s *TradingViewXAU) Fetch(ctx context.Context) ([]Candidate, error) {
	payload := map[string]any{
		"symbols": map[string]any{
			"tickers": []string{"OANDA:XAUUSD"},
			"query":   map[string]any{"types": []string{}},
		},
		"columns": []string{"close"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent(s.opts))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Data []struct {
			D []float64 `json:"d"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].D) == 0 {
		return nil, errors.New("scanner returned no close value")
	}

	value := decimal.NewFromFloat(decoded.Data[0].D[0])
	return []Candidate{{Value: value, Priority: 1, Origin: s.Name()}}, nil
}

// Investing.com price locations, in decreasing trust order. Each matching
// pattern contributes its own candidate so the resolver can reconcile
// disagreement between stale page fragments.
var investingPatterns = []struct {
	re       *regexp.Regexp
	priority int
}{
	{regexp.MustCompile(`data-test="instrument-price-last"[^>]*>([0-9,]+\.?[0-9]*)<`), 1},
	{regexp.MustCompile(`class="instrument-price-last[^"]*"[^>]*>([0-9,]+\.?[0-9]*)<`), 2},
	{regexp.MustCompile(`(?i)instrument[^>]{0,50}?([0-9],?[0-9]{3}\.[0-9]{2})`), 9},
	{regexp.MustCompile(`(?i)quote[^>]{0,50}?([0-9],?[0-9]{3}\.[0-9]{2})`), 9},
}

// InvestingXAU scrapes the Investing.com XAU/USD page.
type InvestingXAU struct {
	opts   HTTPOptions
	client *http.Client
}

// NewInvestingXAU constructs the Investing.com source.
func NewInvestingXAU(opts HTTPOptions) *InvestingXAU {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.investing.com/currencies/xau-usd"
	}
	return &InvestingXAU{opts: opts, client: newHTTPClient(opts.Timeout)}
}

func (s *InvestingXAU) Name() string { return "investing" }

func (s *InvestingXAU) Fetch(ctx context.Context) ([]Candidate, error) {
	html, err := fetchHTML(ctx, s.client, s.opts)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, p := range investingPatterns {
		match := p.re.FindStringSubmatch(html)
		if match == nil {
			continue
		}
		value, err := parsePrice(match[1])
		if err != nil {
			continue
		}
		out = append(out, Candidate{Value: value, Priority: p.priority, Origin: s.Name()})
	}
	if len(out) == 0 {
		return nil, errors.New("no price found in page")
	}
	return out, nil
}

var googleFinancePattern = regexp.MustCompile(`class="[^"]*fxKbKc[^"]*"[^>]*>([0-9,\.]+)</div>`)

// GoogleFinance scrapes a quote page on google.com/finance. It serves both
// the XAU/USD and USD/IDR quantities depending on the configured pair.
type GoogleFinance struct {
	opts     HTTPOptions
	pair     string
	priority int
	client   *http.Client
}

// NewGoogleFinance constructs a Google Finance scrape source for a pair such
// as "XAU-USD" or "USD-IDR".
func NewGoogleFinance(pair string, priority int, opts HTTPOptions) *GoogleFinance {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.google.com/finance/quote/" + pair
	}
	return &GoogleFinance{opts: opts, pair: pair, priority: priority, client: newHTTPClient(opts.Timeout)}
}

func (s *GoogleFinance) Name() string { return "google:" + s.pair }

func (s *GoogleFinance) Fetch(ctx context.Context) ([]Candidate, error) {
	html, err := fetchHTML(ctx, s.client, s.opts)
	if err != nil {
		return nil, err
	}

	match := googleFinancePattern.FindStringSubmatch(html)
	if match == nil {
		return nil, errors.New("quote element not found")
	}
	value, err := parsePrice(match[1])
	if err != nil {
		return nil, err
	}
	return []Candidate{{Value: value, Priority: s.priority, Origin: s.Name()}}, nil
}

func fetchHTML(ctx context.Context, client *http.Client, opts HTTPOptions) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.BaseURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent(opts))
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,id;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	raw, err := readBody(resp)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
}

func userAgent(opts HTTPOptions) string {
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		return ua
	}
	return defaultUserAgent
}

var (
	_ Source = (*TradingViewXAU)(nil)
	_ Source = (*InvestingXAU)(nil)
	_ Source = (*GoogleFinance)(nil)
)
