package reliability

import "math"

const (
	minSubjects = 2
	minRaters   = 2

	iccDecimals = 1000 // 3 decimal places
	fDecimals   = 100  // 2 decimal places
)

// Result is an ICC(2,1) estimate with its F test and approximate 95% CI.
//
// ICC and the CI bounds are rounded to 3 decimals and F to 2. Interpretation
// is derived from the unrounded ICC. F is +Inf when the error mean square is
// zero (perfect agreement) and may be negative for sparse panels.
//
// The error mean square is a difference of sums of squares, so perfect
// agreement on scores that are not exact in binary (0.3, 0.6, 0.9) can leave
// rounding residue instead of zero. ICC is still 1, but F then comes out as a
// huge finite value of either sign, and CI95Lower may drop to 0 while
// CI95Upper stays 1. Integer scores give F=+Inf and a CI of [1, 1].
type Result struct {
	ICC            float64
	F              float64
	DF1            int
	DF2            int
	CI95Lower      float64
	CI95Upper      float64
	N              int
	K              int
	Interpretation Interpretation
}

// anova holds the two-way decomposition of a grid.
type anova struct {
	n, k          int
	msr, msc, mse float64
	dfr, dfe      int
}

// CalculateICC computes the two-way, absolute-agreement, single-measure ICC
// of m. It returns nil when reliability is undefined for the data: fewer than
// two subjects or raters, or no error degrees of freedom.
//
// Missing cells are skipped when averaging, but k is always the number of
// distinct raters in the matrix, including for subjects only some of them
// scored. The confidence interval is a simplified Shrout & Fleiss bound, not
// the exact non-central F inversion.
func CalculateICC(m RatingMatrix) *Result {
	g := newGrid(m)
	a, ok := decompose(g)
	if !ok {
		return nil
	}

	k := float64(a.k)
	n := float64(a.n)

	raw := (a.msr - a.mse) / (a.msr + (k-1)*a.mse + (k/n)*(a.msc-a.mse))
	icc := clampICC(raw)

	f := a.msr / a.mse
	if math.IsNaN(f) {
		f = 0
	}

	spread := 1 + k*icc/(1-icc)
	lower := ciBound(f/spread, k, icc)
	upper := ciBound(f*spread, k, icc)
	if lower > upper {
		lower, upper = upper, lower
	}

	return &Result{
		ICC:            round(icc, iccDecimals),
		F:              round(f, fDecimals),
		DF1:            a.dfr,
		DF2:            a.dfe,
		CI95Lower:      round(lower, iccDecimals),
		CI95Upper:      round(upper, iccDecimals),
		N:              a.n,
		K:              a.k,
		Interpretation: Interpret(icc),
	}
}

// decompose runs the sums-of-squares pass. The error term is obtained by
// subtraction and is deliberately left unclamped.
func decompose(g grid) (anova, bool) {
	n, k := len(g.subjects), len(g.raters)
	if n < minSubjects || k < minRaters || g.count == 0 {
		return anova{}, false
	}
	dfr, dfc := n-1, k-1
	dfe := dfr * dfc
	if dfe == 0 {
		return anova{}, false
	}

	rowSum := make([]float64, n)
	rowCnt := make([]int, n)
	colSum := make([]float64, k)
	colCnt := make([]int, k)
	var total float64
	for i := range g.cells {
		for j, v := range g.cells[i] {
			if !g.present[i][j] {
				continue
			}
			rowSum[i] += v
			rowCnt[i]++
			colSum[j] += v
			colCnt[j]++
			total += v
		}
	}
	grand := total / float64(g.count)

	var ssr, ssc, sst float64
	for i := 0; i < n; i++ {
		if rowCnt[i] == 0 {
			continue
		}
		d := rowSum[i]/float64(rowCnt[i]) - grand
		ssr += d * d
	}
	ssr *= float64(k)

	for j := 0; j < k; j++ {
		if colCnt[j] == 0 {
			continue
		}
		d := colSum[j]/float64(colCnt[j]) - grand
		ssc += d * d
	}
	ssc *= float64(n)

	for i := range g.cells {
		for j, v := range g.cells[i] {
			if !g.present[i][j] {
				continue
			}
			d := v - grand
			sst += d * d
		}
	}
	sse := sst - ssr - ssc

	return anova{
		n:   n,
		k:   k,
		msr: ssr / float64(dfr),
		msc: ssc / float64(dfc),
		mse: sse / float64(dfe),
		dfr: dfr,
		dfe: dfe,
	}, true
}

// clampICC bounds an ICC estimate to [0, 1]. NaN arises only when every cell
// holds the same score and is treated as no reliability.
func clampICC(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// ciBound converts an F-ratio into an ICC bound, (f-1)/(f+k-1) clamped to
// [0, 1]. Infinite ratios take their limit of 1; an undefined ratio collapses
// to the point estimate.
func ciBound(f, k, point float64) float64 {
	if math.IsNaN(f) {
		return point
	}
	if math.IsInf(f, 0) {
		return 1
	}
	v := (f - 1) / (f + k - 1)
	if math.IsNaN(v) {
		return point
	}
	return math.Max(0, math.Min(1, v))
}

func round(v, scale float64) float64 {
	if math.IsInf(v, 0) {
		return v
	}
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0 // normalise -0
	}
	return r
}
