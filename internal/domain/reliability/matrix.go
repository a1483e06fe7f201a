// Package reliability computes inter-rater reliability statistics for panels
// of evaluators scoring the same subjects.
//
// The package is pure: no I/O, no package-level state, every call works on
// its own input only. It is safe to call from any number of goroutines.
package reliability

import "sort"

// EvaluationRecord is a single score given by a rater to a subject.
type EvaluationRecord struct {
	SubjectID string  `json:"subject_id" yaml:"subject_id"`
	RaterID   string  `json:"rater_id" yaml:"rater_id"`
	Score     float64 `json:"score" yaml:"score"`
}

// RatingMatrix maps subject -> rater -> score. It is sparse: a rater that did
// not score a subject has no entry in that subject's map.
type RatingMatrix map[string]map[string]float64

// BuildRatingMatrix folds records into a RatingMatrix. When the same
// (subject, rater) pair appears more than once the later record wins.
func BuildRatingMatrix(records []EvaluationRecord) RatingMatrix {
	m := make(RatingMatrix)
	for _, r := range records {
		row, ok := m[r.SubjectID]
		if !ok {
			row = make(map[string]float64)
			m[r.SubjectID] = row
		}
		row[r.RaterID] = r.Score
	}
	return m
}

// Subjects returns the sorted IDs of subjects holding at least one rating.
func (m RatingMatrix) Subjects() []string {
	out := make([]string, 0, len(m))
	for id, row := range m {
		if len(row) == 0 {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Raters returns the sorted union of rater IDs across all subjects.
func (m RatingMatrix) Raters() []string {
	seen := make(map[string]struct{})
	for _, row := range m {
		for rater := range row {
			seen[rater] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Without returns a copy of m with every score from rater removed. Subjects
// left without ratings are dropped.
func (m RatingMatrix) Without(rater string) RatingMatrix {
	out := make(RatingMatrix, len(m))
	for subject, row := range m {
		cp := make(map[string]float64, len(row))
		for r, score := range row {
			if r == rater {
				continue
			}
			cp[r] = score
		}
		if len(cp) > 0 {
			out[subject] = cp
		}
	}
	return out
}

// grid is the dense form of a RatingMatrix: rows are subjects, columns are
// raters, missing cells have present=false.
type grid struct {
	subjects []string
	raters   []string
	cells    [][]float64
	present  [][]bool
	count    int
}

func newGrid(m RatingMatrix) grid {
	g := grid{
		subjects: m.Subjects(),
		raters:   m.Raters(),
	}
	col := make(map[string]int, len(g.raters))
	for j, id := range g.raters {
		col[id] = j
	}
	g.cells = make([][]float64, len(g.subjects))
	g.present = make([][]bool, len(g.subjects))
	for i, subject := range g.subjects {
		g.cells[i] = make([]float64, len(g.raters))
		g.present[i] = make([]bool, len(g.raters))
		for rater, score := range m[subject] {
			j := col[rater]
			g.cells[i][j] = score
			g.present[i][j] = true
			g.count++
		}
	}
	return g
}
