package estimate

import (
	"math"
	"math/rand"
	"sort"

	"github.com/dmestre/meliwatch/internal/model"
)

// Estimator synthesizes a plausible sales figure for listings whose upstream
// carried none. Every figure it produces is tagged heuristic; it never
// overwrites a real one. The point is a non-empty comparison without real
// sales data, never a guess presented as fact.
type Estimator struct {
	noise func() float64
}

// NewEstimator creates an estimator with uniform noise in [0.85, 1.15).
func NewEstimator() *Estimator {
	return &Estimator{noise: func() float64 { return 0.85 + rand.Float64()*0.3 }}
}

// NewEstimatorWithNoise pins the noise source, mainly for tests.
func NewEstimatorWithNoise(noise func() float64) *Estimator {
	return &Estimator{noise: noise}
}

// baseVolume maps a price band to a monthly volume anchor. Cheap items move
// in bulk, expensive ones trickle.
func baseVolume(price float64) int {
	switch {
	case price <= 0:
		return 150
	case price < 15000:
		return 600
	case price < 40000:
		return 350
	case price < 100000:
		return 150
	case price < 300000:
		return 60
	default:
		return 25
	}
}

// Estimate returns floor(base × 1/(1+rank×0.4) × noise) for a zero-based
// search rank.
func (e *Estimator) Estimate(price float64, rank int) int {
	rankFactor := 1 / (1 + float64(rank)*0.4)
	return int(math.Floor(float64(baseVolume(price)) * rankFactor * e.noise()))
}

// Fill tags a listing with a synthetic figure when, and only when, the
// upstream supplied no authoritative sold quantity. A real zero stays a
// real zero.
func (e *Estimator) Fill(listing model.NormalizedListing, rank int) model.NormalizedListing {
	if listing.SoldQuantity != 0 || listing.Provenance == model.ProvenanceReal {
		if listing.Provenance == "" {
			listing.Provenance = model.ProvenanceReal
		}
		return listing
	}
	listing.SoldQuantity = e.Estimate(listing.Price, rank)
	listing.Provenance = model.ProvenanceHeuristic
	return listing
}

// TopN fills missing figures by search rank, sorts descending by sold
// quantity and returns the top n plus the summed market volume of those n.
func (e *Estimator) TopN(listings []model.NormalizedListing, n int) ([]model.NormalizedListing, int) {
	filled := make([]model.NormalizedListing, 0, len(listings))
	for rank, l := range listings {
		filled = append(filled, e.Fill(l, rank))
	}

	sort.SliceStable(filled, func(i, j int) bool {
		return filled[i].SoldQuantity > filled[j].SoldQuantity
	})

	if len(filled) > n {
		filled = filled[:n]
	}

	volume := 0
	for _, l := range filled {
		volume += l.SoldQuantity
	}
	return filled, volume
}
