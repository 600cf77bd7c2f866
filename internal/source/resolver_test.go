package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type stubSource struct {
	name       string
	candidates []Candidate
	err        error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Fetch(context.Context) ([]Candidate, error) {
	return s.candidates, s.err
}

func cand(v float64, prio int) Candidate {
	return Candidate{Value: decimal.NewFromFloat(v), Priority: prio}
}

func newTestResolver(tolerance float64, sources ...Source) *Resolver {
	return NewResolver("test", ResolverOptions{
		Min:           decimal.NewFromInt(500),
		Max:           decimal.NewFromInt(5000),
		Tolerance:     decimal.NewFromFloat(tolerance),
		SourceTimeout: time.Second,
	}, sources, zerolog.Nop())
}

func TestResolveTightToleranceSplitsClusters(t *testing.T) {
	r := newTestResolver(2, stubSource{name: "a", candidates: []Candidate{
		cand(1002, 1), cand(1003, 2), cand(999, 1), cand(1500, 1),
	}})

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// {1002,1003} is the only two-member cluster; 999 and 1500 are singletons.
	if want := decimal.NewFromFloat(1002.5); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestResolveWideToleranceMergesNearCluster(t *testing.T) {
	r := newTestResolver(5, stubSource{name: "a", candidates: []Candidate{
		cand(1002, 1), cand(1003, 2), cand(999, 1), cand(1500, 1),
	}})

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// 999, 1002, 1003 form one cluster; 1500 stays a singleton outlier.
	want := decimal.NewFromInt(999 + 1002 + 1003).Div(decimal.NewFromInt(3))
	if !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestResolveTieBreaksOnMeanPriority(t *testing.T) {
	r := newTestResolver(1,
		stubSource{name: "low-trust", candidates: []Candidate{cand(2000, 5)}},
		stubSource{name: "high-trust", candidates: []Candidate{cand(1000, 1)}},
	)

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := decimal.NewFromInt(1000); !got.Equal(want) {
		t.Fatalf("equal-size clusters should pick lowest mean priority: want %s, got %s", want, got)
	}
}

func TestResolveDiscardsImplausibleReadings(t *testing.T) {
	r := newTestResolver(2, stubSource{name: "a", candidates: []Candidate{
		cand(42, 1), cand(99999, 1), cand(1000, 3),
	}})

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := decimal.NewFromInt(1000); !got.Equal(want) {
		t.Fatalf("out-of-band readings should be dropped: want %s, got %s", want, got)
	}
}

func TestResolveSourceFailuresAreSwallowed(t *testing.T) {
	r := newTestResolver(2,
		stubSource{name: "broken", err: errors.New("timeout")},
		stubSource{name: "ok", candidates: []Candidate{cand(1000, 1)}},
	)

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve should succeed when one source fails: %v", err)
	}
	if want := decimal.NewFromInt(1000); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestResolveNoCandidatesReturnsNotAvailable(t *testing.T) {
	r := newTestResolver(2, stubSource{name: "broken", err: errors.New("down")})

	if _, err := r.Resolve(context.Background()); !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("want ErrNotAvailable, got %v", err)
	}
}
