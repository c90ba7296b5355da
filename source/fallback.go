package source

import (
	"math/rand"
	"sync"
	"time"

	"omnidata/models"
)

// Fallback produces a substitute price for an asset whose live lookup is
// unsupported or failed. ok reports whether a substitute was produced; when
// false the asset is left untouched. Implementations must be safe for
// concurrent use; pipeline workers call them in parallel.
type Fallback interface {
	Price(asset *models.Asset) (price float64, ok bool)
}

// DriftFallback simulates market movement: it drifts the asset's last known
// price by a bounded random percentage, or seeds unpriced assets with a
// uniform price from a configured range.
type DriftFallback struct {
	driftPct float64
	seedMin  float64
	seedMax  float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewDriftFallback(driftPct, seedMin, seedMax float64) *DriftFallback {
	return &DriftFallback{
		driftPct: driftPct,
		seedMin:  seedMin,
		seedMax:  seedMax,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (f *DriftFallback) Price(asset *models.Asset) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	last := asset.Price()
	if last <= 0 {
		return f.seedMin + f.rng.Float64()*(f.seedMax-f.seedMin), true
	}
	drift := (f.rng.Float64()*2 - 1) * f.driftPct
	return last * (1 + drift), true
}

// NoFallback leaves unresolved assets untouched.
type NoFallback struct{}

func (NoFallback) Price(asset *models.Asset) (float64, bool) { return 0, false }
