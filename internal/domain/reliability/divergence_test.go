package reliability_test

import (
	"testing"

	"github.com/okian/concord/internal/domain/reliability"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRaterDivergence(t *testing.T) {
	Convey("Given a panel where R3 scores two points above the others", t, func() {
		m := reliability.RatingMatrix{
			"S1": {"R1": 3, "R2": 3, "R3": 5},
			"S2": {"R1": 2, "R2": 2, "R3": 4},
			"S3": {"R1": 4, "R2": 4, "R3": 6},
		}

		Convey("When divergence is computed", func() {
			out := reliability.RaterDivergence(m)

			Convey("Then raters are reported in ID order", func() {
				So(len(out), ShouldEqual, 3)
				So(out[0].RaterID, ShouldEqual, "R1")
				So(out[1].RaterID, ShouldEqual, "R2")
				So(out[2].RaterID, ShouldEqual, "R3")
			})

			Convey("And the lenient rater has the largest positive deviation", func() {
				r3 := out[2]
				So(r3.Ratings, ShouldEqual, 3)
				So(r3.Compared, ShouldEqual, 3)
				So(r3.MeanDeviation, ShouldAlmostEqual, 2.0, tolerance)
				So(r3.MeanAbsDeviation, ShouldAlmostEqual, 2.0, tolerance)
			})

			Convey("And the others deviate by half as much in the other direction", func() {
				So(out[0].MeanDeviation, ShouldAlmostEqual, -1.0, tolerance)
				So(out[0].MeanAbsDeviation, ShouldAlmostEqual, 1.0, tolerance)
				So(out[1].MeanDeviation, ShouldAlmostEqual, -1.0, tolerance)
			})

			Convey("And removing the lenient rater leaves a perfectly agreeing panel", func() {
				So(out[2].ICCWithout, ShouldNotBeNil)
				So(out[2].ICCWithout.ICC, ShouldAlmostEqual, 1.0, tolerance)
				So(out[2].ICCWithout.K, ShouldEqual, 2)
			})
		})
	})

	Convey("Given a rater who is the only one on their subject", t, func() {
		m := reliability.RatingMatrix{
			"S1": {"R1": 4, "R2": 4},
			"S2": {"R3": 1},
		}

		Convey("Then that rater has nothing to be compared against", func() {
			out := reliability.RaterDivergence(m)
			So(len(out), ShouldEqual, 3)
			So(out[2].RaterID, ShouldEqual, "R3")
			So(out[2].Ratings, ShouldEqual, 1)
			So(out[2].Compared, ShouldEqual, 0)
			So(out[2].MeanDeviation, ShouldEqual, 0.0)
			So(out[2].MeanAbsDeviation, ShouldEqual, 0.0)
		})
	})

	Convey("Given a two-person panel", t, func() {
		m := reliability.RatingMatrix{
			"S1": {"R1": 4, "R2": 5},
			"S2": {"R1": 3, "R2": 3},
		}

		Convey("Then removing either member leaves too little data", func() {
			out := reliability.RaterDivergence(m)
			So(out[0].ICCWithout, ShouldBeNil)
			So(out[1].ICCWithout, ShouldBeNil)
		})
	})

	Convey("Given an empty matrix", t, func() {
		Convey("Then no raters are reported", func() {
			So(reliability.RaterDivergence(reliability.RatingMatrix{}), ShouldBeEmpty)
		})
	})
}
