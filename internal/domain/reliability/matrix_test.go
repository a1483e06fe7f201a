package reliability_test

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/concord/internal/domain/reliability"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuildRatingMatrix(t *testing.T) {
	Convey("Given evaluation records", t, func() {
		Convey("When the input is empty", func() {
			m := reliability.BuildRatingMatrix(nil)

			Convey("Then the matrix is empty but usable", func() {
				So(m, ShouldNotBeNil)
				So(len(m), ShouldEqual, 0)
				So(m.Subjects(), ShouldBeEmpty)
				So(m.Raters(), ShouldBeEmpty)
			})
		})

		Convey("When records cover several subjects and raters", func() {
			m := reliability.BuildRatingMatrix([]reliability.EvaluationRecord{
				{SubjectID: "S1", RaterID: "R1", Score: 4},
				{SubjectID: "S1", RaterID: "R2", Score: 3},
				{SubjectID: "S2", RaterID: "R1", Score: 5},
			})

			Convey("Then every record lands in its cell", func() {
				want := reliability.RatingMatrix{
					"S1": {"R1": 4, "R2": 3},
					"S2": {"R1": 5},
				}
				So(cmp.Diff(want, m), ShouldBeEmpty)
				So(m.Subjects(), ShouldResemble, []string{"S1", "S2"})
				So(m.Raters(), ShouldResemble, []string{"R1", "R2"})
			})
		})

		Convey("When the same pair is scored twice", func() {
			m := reliability.BuildRatingMatrix([]reliability.EvaluationRecord{
				{SubjectID: "S1", RaterID: "R1", Score: 2},
				{SubjectID: "S1", RaterID: "R2", Score: 3},
				{SubjectID: "S1", RaterID: "R1", Score: 5},
			})

			Convey("Then the later record wins", func() {
				So(m["S1"]["R1"], ShouldEqual, 5)
				So(len(m["S1"]), ShouldEqual, 2)
			})
		})

		Convey("When unique records are shuffled", func() {
			records := []reliability.EvaluationRecord{
				{SubjectID: "S1", RaterID: "R1", Score: 1},
				{SubjectID: "S1", RaterID: "R2", Score: 2},
				{SubjectID: "S2", RaterID: "R1", Score: 3},
				{SubjectID: "S2", RaterID: "R3", Score: 4},
				{SubjectID: "S3", RaterID: "R2", Score: 5},
				{SubjectID: "S3", RaterID: "R3", Score: 2.5},
			}
			want := reliability.BuildRatingMatrix(records)
			rng := rand.New(rand.NewSource(7))

			Convey("Then every permutation builds the same matrix", func() {
				for i := 0; i < 20; i++ {
					shuffled := append([]reliability.EvaluationRecord(nil), records...)
					rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
					So(cmp.Diff(want, reliability.BuildRatingMatrix(shuffled)), ShouldBeEmpty)
				}
			})
		})

		Convey("When duplicates keep their relative order under shuffling", func() {
			base := []reliability.EvaluationRecord{
				{SubjectID: "S1", RaterID: "R1", Score: 1},
				{SubjectID: "S2", RaterID: "R2", Score: 2},
				{SubjectID: "S1", RaterID: "R1", Score: 4},
			}
			reordered := []reliability.EvaluationRecord{
				{SubjectID: "S1", RaterID: "R1", Score: 1},
				{SubjectID: "S1", RaterID: "R1", Score: 4},
				{SubjectID: "S2", RaterID: "R2", Score: 2},
			}

			Convey("Then the matrices are identical", func() {
				So(cmp.Diff(reliability.BuildRatingMatrix(base), reliability.BuildRatingMatrix(reordered)), ShouldBeEmpty)
			})
		})
	})
}

func TestRatingMatrixWithout(t *testing.T) {
	Convey("Given a matrix where one subject was scored by a single rater", t, func() {
		m := reliability.RatingMatrix{
			"S1": {"R1": 4, "R2": 3},
			"S2": {"R2": 5},
		}

		Convey("When that rater is removed", func() {
			out := m.Without("R2")

			Convey("Then subjects left empty are dropped and the input is untouched", func() {
				So(cmp.Diff(reliability.RatingMatrix{"S1": {"R1": 4}}, out), ShouldBeEmpty)
				So(len(m["S1"]), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a hand-built matrix with an empty subject", t, func() {
		m := reliability.RatingMatrix{
			"S1": {"R1": 4},
			"S2": {},
		}

		Convey("Then the empty subject is not listed", func() {
			So(m.Subjects(), ShouldResemble, []string{"S1"})
		})
	})
}
