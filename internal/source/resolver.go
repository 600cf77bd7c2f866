package source

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrNotAvailable signals that no source yielded an acceptable reading.
// Callers must treat it as "no data", never as zero.
var ErrNotAvailable = errors.New("source: no value available")

// ResolverOptions tune candidate filtering and reconciliation.
type ResolverOptions struct {
	// Min/Max form the hard plausibility band; readings outside are discarded
	// as noise rather than treated as errors.
	Min decimal.Decimal
	Max decimal.Decimal
	// Tolerance is the maximum absolute difference between two candidates in
	// the same cluster.
	Tolerance decimal.Decimal
	// SourceTimeout bounds each individual upstream call.
	SourceTimeout time.Duration
}

// Resolver queries independent sources for a single quantity and reconciles
// disagreement by clustering. The winning cluster has the most members; ties
// break toward the lowest mean priority. The result is the cluster mean.
type Resolver struct {
	name    string
	opts    ResolverOptions
	sources []Source
	logger  zerolog.Logger
}

// NewResolver constructs a resolver over the given sources.
func NewResolver(name string, opts ResolverOptions, sources []Source, logger zerolog.Logger) *Resolver {
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 6 * time.Second
	}
	return &Resolver{
		name:    name,
		opts:    opts,
		sources: sources,
		logger:  logger.With().Str("component", "resolver").Str("quantity", name).Logger(),
	}
}

// Resolve fans out to every source concurrently and reconciles the accepted
// candidates. Individual source failures are swallowed; they only remove that
// source's candidates from the pool.
func (r *Resolver) Resolve(ctx context.Context) (decimal.Decimal, error) {
	var (
		mu   sync.Mutex
		pool []Candidate
		wg   sync.WaitGroup
	)

	for _, src := range r.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, r.opts.SourceTimeout)
			defer cancel()

			candidates, err := src.Fetch(fetchCtx)
			if err != nil {
				r.logger.Debug().Err(err).Str("source", src.Name()).Msg("source failed, excluded from this cycle")
				return
			}

			mu.Lock()
			pool = append(pool, candidates...)
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	accepted := r.filterPlausible(pool)
	if len(accepted) == 0 {
		return decimal.Decimal{}, ErrNotAvailable
	}

	winner := selectCluster(accepted, r.opts.Tolerance)
	value := clusterMean(winner)

	r.logger.Debug().
		Int("candidates", len(accepted)).
		Int("cluster_size", len(winner)).
		Str("value", value.String()).
		Msg("resolved")
	return value, nil
}

func (r *Resolver) filterPlausible(pool []Candidate) []Candidate {
	out := pool[:0]
	for _, c := range pool {
		if !r.opts.Min.IsZero() && c.Value.LessThan(r.opts.Min) {
			continue
		}
		if !r.opts.Max.IsZero() && c.Value.GreaterThan(r.opts.Max) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// selectCluster groups candidates whose distance to the cluster seed is within
// tolerance, then picks the largest cluster, breaking ties by the lowest mean
// priority. Candidates are sorted first so clustering is deterministic
// regardless of source completion order.
func selectCluster(candidates []Candidate, tolerance decimal.Decimal) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].Value.LessThan(sorted[j].Value)
	})

	var clusters [][]Candidate
	for _, c := range sorted {
		placed := false
		for i, cluster := range clusters {
			seed := cluster[0].Value
			if c.Value.Sub(seed).Abs().LessThanOrEqual(tolerance) {
				clusters[i] = append(cluster, c)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []Candidate{c})
		}
	}

	best := clusters[0]
	bestPrio := meanPriority(best)
	for _, cluster := range clusters[1:] {
		prio := meanPriority(cluster)
		switch {
		case len(cluster) > len(best):
			best, bestPrio = cluster, prio
		case len(cluster) == len(best) && prio.LessThan(bestPrio):
			best, bestPrio = cluster, prio
		}
	}
	return best
}

func meanPriority(cluster []Candidate) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range cluster {
		sum = sum.Add(decimal.NewFromInt(int64(c.Priority)))
	}
	return sum.Div(decimal.NewFromInt(int64(len(cluster))))
}

func clusterMean(cluster []Candidate) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range cluster {
		sum = sum.Add(c.Value)
	}
	return sum.Div(decimal.NewFromInt(int64(len(cluster))))
}
