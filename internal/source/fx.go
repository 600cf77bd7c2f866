package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRateFX reads USD/IDR from the exchangerate-api JSON endpoint.
type ExchangeRateFX struct {
	opts   HTTPOptions
	client *http.Client
}

// NewExchangeRateFX constructs the exchangerate-api source.
func NewExchangeRateFX(opts HTTPOptions) *ExchangeRateFX {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.exchangerate-api.com/v4/latest/USD"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &ExchangeRateFX{opts: opts, client: newHTTPClient(opts.Timeout)}
}

func (s *ExchangeRateFX) Name() string { return "exchangerate-api" }

func (s *ExchangeRateFX) Fetch(ctx context.Context) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	rate, ok := decoded.Rates["IDR"]
	if !ok || rate <= 0 {
		return nil, errors.New("response missing IDR rate")
	}

	return []Candidate{{Value: decimal.NewFromFloat(rate), Priority: 2, Origin: s.Name()}}, nil
}

var _ Source = (*ExchangeRateFX)(nil)
