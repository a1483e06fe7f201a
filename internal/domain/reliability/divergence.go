package reliability

import "math"

// Divergence describes how far one rater's scores sit from the rest of the
// panel on the subjects they share.
type Divergence struct {
	RaterID string
	// Ratings is the number of subjects the rater scored.
	Ratings int
	// Compared is the number of those subjects that at least one other rater
	// also scored. Deviations are averaged over these only.
	Compared int
	// MeanDeviation is the signed average of score minus the mean of the
	// other raters on the same subject. Positive means lenient.
	MeanDeviation float64
	// MeanAbsDeviation is the average absolute deviation.
	MeanAbsDeviation float64
	// ICCWithout is the panel ICC with this rater removed, nil when the
	// remaining panel is too small.
	ICCWithout *Result
}

// RaterDivergence reports a Divergence for every rater in m, sorted by
// rater ID.
func RaterDivergence(m RatingMatrix) []Divergence {
	raters := m.Raters()
	out := make([]Divergence, 0, len(raters))
	for _, rater := range raters {
		d := Divergence{RaterID: rater}
		var sum, abs float64
		for _, row := range m {
			score, ok := row[rater]
			if !ok {
				continue
			}
			d.Ratings++
			others, cnt := 0.0, 0
			for r, s := range row {
				if r == rater {
					continue
				}
				others += s
				cnt++
			}
			if cnt == 0 {
				continue
			}
			dev := score - others/float64(cnt)
			sum += dev
			abs += math.Abs(dev)
			d.Compared++
		}
		if d.Compared > 0 {
			d.MeanDeviation = round(sum/float64(d.Compared), iccDecimals)
			d.MeanAbsDeviation = round(abs/float64(d.Compared), iccDecimals)
		}
		d.ICCWithout = CalculateICC(m.Without(rater))
		out = append(out, d)
	}
	return out
}
