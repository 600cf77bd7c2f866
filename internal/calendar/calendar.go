package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Jakarta presentation timezone.
var jakartaTZ = time.FixedZone("WIB", 7*60*60)

// Event is one economic-calendar entry.
type Event struct {
	Title    string    `json:"title"`
	Country  string    `json:"country"`
	Date     time.Time `json:"date"`
	Impact   string    `json:"impact"`
	Forecast string    `json:"forecast"`
	Previous string    `json:"previous"`
	Actual   string    `json:"actual"`
}

// Options parameterise the calendar client.
type Options struct {
	URL       string
	Timeout   time.Duration
	CacheTTL  time.Duration
	Countries []string
	MaxEvents int
	// HideAfter drops an event this long after its release time.
	HideAfter time.Duration
}

// Client fetches and filters this week's economic calendar, caching results.
type Client struct {
	opts   Options
	logger zerolog.Logger
	client *http.Client
	clock  func() time.Time

	mu        sync.Mutex
	cached    []Event
	fetchedAt time.Time
}

// New constructs a calendar client.
func New(opts Options, logger zerolog.Logger) *Client {
	if opts.URL == "" {
		opts.URL = "https://nfs.faireconomy.media/ff_calendar_thisweek.json"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if len(opts.Countries) == 0 {
		opts.Countries = []string{"USD"}
	}
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = 10
	}
	if opts.HideAfter <= 0 {
		opts.HideAfter = 3 * time.Hour
	}
	return &Client{
		opts:   opts,
		logger: logger.With().Str("component", "calendar").Logger(),
		client: &http.Client{Timeout: opts.Timeout},
		clock:  time.Now,
	}
}

// Events returns upcoming high-impact events, served from cache when fresh.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	c.mu.Lock()
	if c.cached != nil && c.clock().Sub(c.fetchedAt) < c.opts.CacheTTL {
		out := c.cached
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	events, err := c.fetch(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("calendar fetch failed")
		// Keep serving the previous list rather than dropping the section.
		c.mu.Lock()
		out := c.cached
		c.mu.Unlock()
		if out != nil {
			return out, nil
		}
		return nil, err
	}

	filtered := c.filter(events)
	c.mu.Lock()
	c.cached = filtered
	c.fetchedAt = c.clock()
	c.mu.Unlock()

	c.logger.Debug().Int("events", len(filtered)).Msg("calendar refreshed")
	return filtered, nil
}

// Cached returns the last fetched list without touching the network.
func (c *Client) Cached() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached
}

type rawEvent struct {
	Title    string `json:"title"`
	Country  string `json:"country"`
	Date     string `json:"date"`
	Impact   string `json:"impact"`
	Forecast string `json:"forecast"`
	Previous string `json:"previous"`
	Actual   string `json:"actual"`
}

func (c *Client) fetch(ctx context.Context) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar api status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var decoded []rawEvent
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	events := make([]Event, 0, len(decoded))
	for _, re := range decoded {
		ts, err := time.Parse(time.RFC3339, re.Date)
		if err != nil {
			continue
		}
		events = append(events, Event{
			Title:    re.Title,
			Country:  re.Country,
			Date:     ts,
			Impact:   re.Impact,
			Forecast: re.Forecast,
			Previous: re.Previous,
			Actual:   re.Actual,
		})
	}
	return events, nil
}

// filter keeps high-impact events for the configured currencies that fall on
// today or tomorrow in WIB and have not been released for longer than the
// hide window. Results are time-sorted and capped.
func (c *Client) filter(events []Event) []Event {
	now := c.clock()
	todayWIB := truncateDay(now.In(jakartaTZ))
	cutoff := todayWIB.AddDate(0, 0, 2)

	out := make([]Event, 0, c.opts.MaxEvents)
	for _, ev := range events {
		if !strings.EqualFold(ev.Impact, "High") {
			continue
		}
		if !c.countryAllowed(ev.Country) {
			continue
		}
		if now.After(ev.Date.Add(c.opts.HideAfter)) {
			continue
		}
		evDay := truncateDay(ev.Date.In(jakartaTZ))
		if evDay.Before(todayWIB) || !evDay.Before(cutoff) {
			continue
		}
		out = append(out, ev)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if len(out) > c.opts.MaxEvents {
		out = out[:c.opts.MaxEvents]
	}
	return out
}

func (c *Client) countryAllowed(country string) bool {
	for _, allowed := range c.opts.Countries {
		if strings.EqualFold(country, allowed) {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
