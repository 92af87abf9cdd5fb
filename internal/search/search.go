package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/encoder"
	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/internal/index"
)

// Rows scanned between context checks inside a partition
const checkEvery = 4096

// Below this many rows per worker the scan runs in fewer partitions
const minPartition = 16384

// Twin is one retrieved neighbour
type Twin struct {
	building.Record
	Rank              int     `json:"rank"`
	MonthlyUsage      float64 `json:"monthly_usage"`
	Distance          float64 `json:"distance"`
	Similarity        float64 `json:"similarity_score"`
	SimilarityPercent float64 `json:"similarity_percent"`
}

// Similarity maps a Euclidean distance to (0, 1] as 1/(1+d). It decreases
// monotonically and equals 1 only for identical vectors.
func Similarity(distance float64) float64 {
	return 1 / (1 + distance)
}

// Percent renders a similarity as a percentage with one decimal
func Percent(similarity float64) float64 {
	return math.Round(similarity*1000) / 10
}

// Searcher runs exact k-nearest-neighbour scans over an index
type Searcher struct {
	Workers int
}

// NewSearcher returns a Searcher using up to workers goroutines per query;
// zero or less means GOMAXPROCS.
func NewSearcher(workers int) *Searcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Searcher{Workers: workers}
}

// Search returns the k nearest reference buildings using a default Searcher
func Search(ctx context.Context, q encoder.QueryVector, idx *index.Index, k int) ([]Twin, error) {
	return NewSearcher(0).Search(ctx, q, idx, k)
}

// Search returns min(k, idx.Size()) twins ordered by ascending distance.
// Equal distances are ordered by index position. The scan is exact; workers
// only split the rows.
func (s *Searcher) Search(ctx context.Context, q encoder.QueryVector, idx *index.Index, k int) ([]Twin, error) {
	if k <= 0 {
		return nil, failure.InvalidQuery("k", "must be at least 1")
	}
	if idx.Size() == 0 {
		return nil, failure.InvalidQuery("index", "reference index is empty")
	}
	if len(q.Values) != encoder.Dims {
		return nil, failure.InvalidQuery("vector", fmt.Sprintf("expected %d dimensions, got %d", encoder.Dims, len(q.Values)))
	}

	dims := q.ActiveDims()
	n := idx.Size()
	if k > n {
		k = n
	}

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	if maxUseful := (n + minPartition - 1) / minPartition; workers > maxUseful {
		workers = maxUseful
	}
	chunk := (n + workers - 1) / workers

	partials := make([][]candidate, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, n)
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			top := newTopK(k)
			for i := lo; i < hi; i++ {
				if (i-lo)%checkEvery == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				top.offer(candidate{pos: i, d2: squaredDistance(q.Values, idx.RowView(i), dims)})
			}
			partials[w] = top.items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, failure.Timeout("similarity search did not finish", err)
		}
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	merged := make([]candidate, 0, workers*k)
	for _, p := range partials {
		merged = append(merged, p...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].before(merged[j]) })
	merged = merged[:k]

	twins := make([]Twin, len(merged))
	for rank, c := range merged {
		rec := idx.RecordAt(c.pos)
		d := math.Sqrt(c.d2)
		sim := Similarity(d)
		twins[rank] = Twin{
			Record:            *rec,
			Rank:              rank + 1,
			MonthlyUsage:      rec.MonthlyKWh(),
			Distance:          d,
			Similarity:        sim,
			SimilarityPercent: Percent(sim),
		}
	}

	return twins, nil
}

// Distance returns the Euclidean distance between a query and a reference
// vector over the query's active dimensions.
func Distance(q encoder.QueryVector, v []float64) float64 {
	return math.Sqrt(squaredDistance(q.Values, v, q.ActiveDims()))
}

func squaredDistance(q, v []float64, dims []int) float64 {
	var sum float64
	for _, d := range dims {
		diff := q[d] - v[d]
		sum += diff * diff
	}
	return sum
}
