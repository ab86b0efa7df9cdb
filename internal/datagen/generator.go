package datagen

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/trellisviz/trellis/internal/core/domain"
)

var (
	categories          = []string{"Electronics", "Clothing", "Books", "Home", "Sports"}
	categoryWeights     = []float64{0.3, 0.25, 0.2, 0.15, 0.1}
	regions             = []string{"North", "South", "East", "West"}
	customerTypes       = []string{"Premium", "Standard", "Basic"}
	customerTypeWeights = []float64{0.2, 0.5, 0.3}
)

// Generator produces the synthetic retail dataset used for demos and
// development: five numeric columns with built-in correlations, three
// categorical ones, two text ones, and a purchase date. Output is fully
// deterministic for a given rows/seed pair.
type Generator struct {
	rows   int
	seed   uint64
	logger *slog.Logger
}

func NewGenerator(rows int, seed uint64, logger *slog.Logger) *Generator {
	return &Generator{rows: rows, seed: seed, logger: logger}
}

// Load generates the dataset. The context is unused; generation is pure
// in-memory work.
func (g *Generator) Load(_ context.Context) (*domain.Dataset, error) {
	n := g.rows
	if n <= 0 {
		return nil, fmt.Errorf("generator rows must be positive, got %d", n)
	}
	rng := rand.New(rand.NewPCG(g.seed, g.seed))

	price := make([]float64, n)
	quantity := make([]float64, n)
	rating := make([]float64, n)
	discount := make([]float64, n)
	revenue := make([]float64, n)
	category := make([]string, n)
	region := make([]string, n)
	customerType := make([]string, n)
	productName := make([]string, n)
	description := make([]string, n)
	purchaseDate := make([]string, n)

	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		price[i] = math.Exp(3 + 0.5*rng.NormFloat64())
		quantity[i] = float64(poisson(rng, 50))
		rating[i] = clamp(4.2+0.8*rng.NormFloat64(), 1, 5)
		discount[i] = 100 * beta(rng, 2, 5)
		category[i] = choiceWeighted(rng, categories, categoryWeights)
		region[i] = regions[rng.IntN(len(regions))]
		customerType[i] = choiceWeighted(rng, customerTypes, customerTypeWeights)
		productName[i] = fmt.Sprintf("Product_%04d", i)
		description[i] = fmt.Sprintf("Description for product %d", i)
		purchaseDate[i] = start.AddDate(0, 0, rng.IntN(365)).Format(time.DateOnly)
	}

	for i := range n {
		revenue[i] = price[i] * quantity[i] * (1 - discount[i]/100)
	}

	// Pricier items rate a little higher: bump the top price quartile.
	p75 := quantile(price, 0.75)
	for i := range n {
		if price[i] > p75 {
			rating[i] = clamp(rating[i]+0.3*rng.NormFloat64(), 1, 5)
		}
	}

	// Premium customers buy more expensive items; revenue keeps the
	// original price.
	for i := range n {
		if customerType[i] == "Premium" {
			price[i] *= 1.2 + 0.8*rng.Float64()
		}
	}

	ds, err := domain.NewDataset("retail-demo",
		domain.NumberColumn("price", price),
		domain.NumberColumn("quantity", quantity),
		domain.NumberColumn("rating", rating),
		domain.NumberColumn("discount_pct", discount),
		domain.NumberColumn("revenue", revenue),
		domain.StringColumn("category", category),
		domain.StringColumn("region", region),
		domain.StringColumn("customer_type", customerType),
		domain.StringColumn("product_name", productName),
		domain.StringColumn("description", description),
		domain.StringColumn("purchase_date", purchaseDate),
	)
	if err != nil {
		return nil, fmt.Errorf("building synthetic dataset: %w", err)
	}

	g.logger.Debug("synthetic dataset generated",
		slog.Int("rows", n), slog.Uint64("seed", g.seed))
	return ds, nil
}

// choiceWeighted draws one value with the given probability weights.
func choiceWeighted(rng *rand.Rand, values []string, weights []float64) string {
	u := rng.Float64()
	var acc float64
	for i, w := range weights {
		acc += w
		if u < acc {
			return values[i]
		}
	}
	return values[len(values)-1]
}

// poisson draws from Poisson(lambda) by Knuth's product-of-uniforms method.
func poisson(rng *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

// beta draws from Beta(a, b) as Ga/(Ga+Gb).
func beta(rng *rand.Rand, a, b float64) float64 {
	x := gammaDraw(rng, a)
	y := gammaDraw(rng, b)
	return x / (x + y)
}

// gammaDraw draws from Gamma(shape, 1) by the Marsaglia-Tsang squeeze.
// Shapes below one are boosted with the standard power transform.
func gammaDraw(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		return gammaDraw(rng, shape+1) * math.Pow(rng.Float64(), 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// quantile returns the linearly interpolated q-quantile of values.
func quantile(values []float64, q float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
