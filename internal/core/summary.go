package core

import (
	"sort"
	"strconv"
)

// QuarterKey identifies one three-month period of a calendar year.
type QuarterKey struct {
	Year    int
	Quarter int // 1-4
}

func (k QuarterKey) String() string {
	return strconv.Itoa(k.Year) + " Q" + strconv.Itoa(k.Quarter)
}

// Less orders keys chronologically.
func (k QuarterKey) Less(o QuarterKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Quarter < o.Quarter
}

// QuarterTotal is the local-currency total for one quarter.
type QuarterTotal struct {
	Key   QuarterKey
	Total float64
	Count int
}

// YearTotal is the local-currency total for one calendar year.
type YearTotal struct {
	Year  int
	Total float64
}

// Summary groups transactions by quarter, most recent quarter first.
// AnnualTotal sums every loaded transaction regardless of its year.
type Summary struct {
	Quarters    []QuarterTotal
	AnnualTotal float64
}

// Summarize recomputes quarter totals from the given transactions. It keeps
// no state between calls.
func Summarize(txs []Transaction) Summary {
	if len(txs) == 0 {
		return Summary{Quarters: []QuarterTotal{}}
	}
	idx := make(map[QuarterKey]int)
	quarters := make([]QuarterTotal, 0, 4)
	for _, t := range txs {
		k := t.Quarter()
		i, ok := idx[k]
		if !ok {
			i = len(quarters)
			idx[k] = i
			quarters = append(quarters, QuarterTotal{Key: k})
		}
		quarters[i].Total += t.AmountLocal
		quarters[i].Count++
	}
	sort.Slice(quarters, func(i, j int) bool {
		return quarters[j].Key.Less(quarters[i].Key)
	})
	var total float64
	for _, q := range quarters {
		total += q.Total
	}
	return Summary{Quarters: quarters, AnnualTotal: total}
}

// ByQuarter returns the quarter totals as a map.
func (s Summary) ByQuarter() map[QuarterKey]float64 {
	out := make(map[QuarterKey]float64, len(s.Quarters))
	for _, q := range s.Quarters {
		out[q.Key] = q.Total
	}
	return out
}

// Years returns per-calendar-year subtotals, most recent year first.
func (s Summary) Years() []YearTotal {
	var out []YearTotal
	for _, q := range s.Quarters {
		if n := len(out); n > 0 && out[n-1].Year == q.Key.Year {
			out[n-1].Total += q.Total
			continue
		}
		out = append(out, YearTotal{Year: q.Key.Year, Total: q.Total})
	}
	return out
}

// IsEmpty reports whether the summary has no quarters.
func (s Summary) IsEmpty() bool {
	return len(s.Quarters) == 0
}

// SortByDateDesc orders transactions most recent first. Equal dates keep
// their relative order.
func SortByDateDesc(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date.Time)
	})
}
