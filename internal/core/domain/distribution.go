package domain

import "fmt"

// Histogram sizing for distribution summaries. Numeric columns bin their
// values, text columns bin their value lengths.
const (
	NumericBins    = 30
	TextLengthBins = 20
)

// Bin is one histogram bucket. Lo is inclusive; Hi is exclusive except for
// the last bin, which is closed so the column maximum lands inside it.
type Bin struct {
	Lo       float64 `json:"lo"`
	Hi       float64 `json:"hi"`
	Baseline int     `json:"baseline"`
	Kept     int     `json:"kept"`
}

// CategoryCount carries the two count layers for one categorical value.
type CategoryCount struct {
	Value    string `json:"value"`
	Baseline int    `json:"baseline"`
	Kept     int    `json:"kept"`
}

// Distribution is the render-ready summary of one filter's column. Baseline
// counts rows passing every filter except the filter under inspection; Kept
// counts rows passing the whole conjunction. Drawn on top of each other the
// two layers show what the inspected filter alone removes.
//
// Bucket edges derive from the full column, not from the surviving rows, so
// they stay put while filters are edited.
type Distribution struct {
	Column     string          `json:"column"`
	Kind       ColumnKind      `json:"kind"`
	Bins       []Bin           `json:"bins,omitempty"`       // numeric and text kinds
	Categories []CategoryCount `json:"categories,omitempty"` // categorical kind
}

// Summarize builds the distribution of the profiled column under the two
// masks. Both masks must span the dataset's rows.
func Summarize(ds *Dataset, profile ColumnProfile, baseline, kept RowMask) (Distribution, error) {
	col, ok := ds.Column(profile.Name)
	if !ok {
		return Distribution{}, fmt.Errorf("%w: %q", ErrUnknownColumn, profile.Name)
	}

	d := Distribution{Column: profile.Name, Kind: profile.Kind}
	switch profile.Kind {
	case KindNumeric:
		d.Bins = makeBins(profile.Min, profile.Max, NumericBins)
		for i := range col.Len() {
			if col.Missing(i) {
				continue
			}
			countRow(d.Bins, profile.Min, profile.Max, col.Float(i), baseline.At(i), kept.At(i))
		}
	case KindText:
		lo, hi := lengthRange(col)
		d.Bins = makeBins(lo, hi, TextLengthBins)
		for i := range col.Len() {
			if col.Missing(i) {
				continue
			}
			countRow(d.Bins, lo, hi, float64(len(col.String(i))), baseline.At(i), kept.At(i))
		}
	case KindCategorical:
		index := make(map[string]int, len(profile.Values))
		d.Categories = make([]CategoryCount, len(profile.Values))
		for i, v := range profile.Values {
			index[v] = i
			d.Categories[i].Value = v
		}
		for i := range col.Len() {
			if col.Missing(i) {
				continue
			}
			ci, ok := index[col.Canonical(i)]
			if !ok {
				continue
			}
			if baseline.At(i) {
				d.Categories[ci].Baseline++
			}
			if kept.At(i) {
				d.Categories[ci].Kept++
			}
		}
	}
	return d, nil
}

// makeBins splits [lo, hi] into n equal buckets. A degenerate range
// collapses to a single bucket.
func makeBins(lo, hi float64, n int) []Bin {
	if hi <= lo {
		return []Bin{{Lo: lo, Hi: hi}}
	}
	bins := make([]Bin, n)
	for k := range n {
		bins[k].Lo = lo + (hi-lo)*float64(k)/float64(n)
		bins[k].Hi = lo + (hi-lo)*float64(k+1)/float64(n)
	}
	return bins
}

func countRow(bins []Bin, lo, hi, v float64, inBaseline, inKept bool) {
	if !inBaseline && !inKept {
		return
	}
	idx := 0
	if hi > lo {
		idx = int(float64(len(bins)) * (v - lo) / (hi - lo))
		if idx >= len(bins) {
			idx = len(bins) - 1
		}
		if idx < 0 {
			idx = 0
		}
	}
	if inBaseline {
		bins[idx].Baseline++
	}
	if inKept {
		bins[idx].Kept++
	}
}

// lengthRange observes the min and max string length over non-missing
// values.
func lengthRange(col *Column) (float64, float64) {
	lo, hi := 0, 0
	seen := false
	for i := range col.Len() {
		if col.Missing(i) {
			continue
		}
		n := len(col.String(i))
		if !seen || n < lo {
			lo = n
		}
		if !seen || n > hi {
			hi = n
		}
		seen = true
	}
	return float64(lo), float64(hi)
}
