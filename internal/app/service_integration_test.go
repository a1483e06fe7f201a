package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/concord/internal/adapters/cache"
	"github.com/okian/concord/internal/adapters/repository"
	service "github.com/okian/concord/internal/app"
	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/internal/domain/types"
)

// waitForRecords polls until the scope's report covers n evaluations.
func waitForRecords(svc *service.Service, scope model.Scope, n int) *types.Report {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r, err := svc.Report(context.Background(), scope); err == nil && r.Records == n {
			return r
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func submitAll(ctx context.Context, svc *service.Service, events []model.Event) {
	for _, e := range events {
		res, err := svc.Submit(ctx, e)
		So(err, ShouldBeNil)
		So(res.Status, ShouldEqual, service.SubmitAccepted)
	}
}

func biasedPanel(scope model.Scope) []model.Event {
	scores := map[string][3]float64{
		"S1": {3, 3, 5},
		"S2": {2, 2, 4},
		"S3": {4, 4, 6},
	}
	var out []model.Event
	for _, subject := range []string{"S1", "S2", "S3"} {
		for i, rater := range []string{"R1", "R2", "R3"} {
			out = append(out, model.Event{Scope: scope, SubjectID: subject, RaterID: rater, Score: scores[subject][i]})
		}
	}
	return out
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a started service on the memory store", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(3), service.WithQueueSize(100))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("When a panel with one lenient rater is submitted", func() {
			submitAll(ctx, svc, biasedPanel(backend))
			report := waitForRecords(svc, backend, 9)

			Convey("Then the report flags only that rater", func() {
				So(report, ShouldNotBeNil)
				So(report.Status, ShouldEqual, types.StatusOK)
				So(report.Reliability.K, ShouldEqual, 3)
				So(report.Raters[2].RaterID, ShouldEqual, "R3")
				So(report.Raters[2].MeanDeviation, ShouldAlmostEqual, 2.0, 1e-9)
				So(report.Raters[2].NeedsCalibration, ShouldBeTrue)
				So(report.Raters[2].ICCWithout.ICC, ShouldAlmostEqual, 1.0, 1e-9)
				So(report.Raters[0].NeedsCalibration, ShouldBeFalse)
			})

			Convey("And the rater view matches the report", func() {
				raters, err := svc.Raters(ctx, backend)
				So(err, ShouldBeNil)
				So(raters, ShouldResemble, report.Raters)
			})

			Convey("And the scope is listed", func() {
				scopes, err := svc.Scopes(ctx)
				So(err, ShouldBeNil)
				So(scopes, ShouldResemble, []types.ScopeSummary{{OrganizationID: "acme", AssessmentID: "backend", Records: 9}})
			})
		})

		Convey("When a later evaluation overrides an earlier one", func() {
			submitAll(ctx, svc, []model.Event{
				{EventID: "a", Scope: backend, SubjectID: "S1", RaterID: "R1", Score: 1},
				{EventID: "b", Scope: backend, SubjectID: "S1", RaterID: "R2", Score: 4},
				{EventID: "c", Scope: backend, SubjectID: "S2", RaterID: "R1", Score: 2},
				{EventID: "d", Scope: backend, SubjectID: "S2", RaterID: "R2", Score: 2},
			})
			So(waitForRecords(svc, backend, 4), ShouldNotBeNil)
			submitAll(ctx, svc, []model.Event{{EventID: "e", Scope: backend, SubjectID: "S1", RaterID: "R1", Score: 4}})
			report := waitForRecords(svc, backend, 5)

			Convey("Then the report reflects the latest score", func() {
				So(report, ShouldNotBeNil)
				So(report.Reliability.ICC, ShouldEqual, 1.0)
			})
		})

		Convey("When an assessment has only one interview", func() {
			scope := model.Scope{OrganizationID: "acme", AssessmentID: "tiny"}
			submitAll(ctx, svc, []model.Event{
				{Scope: scope, SubjectID: "S1", RaterID: "R1", Score: 4},
				{Scope: scope, SubjectID: "S1", RaterID: "R2", Score: 5},
			})
			report := waitForRecords(svc, scope, 2)

			Convey("Then the report is returned with insufficient data", func() {
				So(report, ShouldNotBeNil)
				So(report.Status, ShouldEqual, types.StatusInsufficientData)
				So(report.Reliability, ShouldBeNil)
			})
		})

		Convey("When an unknown assessment is requested", func() {
			_, err := svc.Report(ctx, model.Scope{OrganizationID: "acme", AssessmentID: "nope"})
			_, ierr := svc.Report(ctx, model.Scope{OrganizationID: "acme"})

			Convey("Then the store errors are surfaced", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(ierr, repository.ErrInvalidScope), ShouldBeTrue)
			})
		})
	})
}

func TestServiceWithSQLAndCache(t *testing.T) {
	Convey("Given a service on sqlite with a redis report cache", t, func() {
		ctx := context.Background()
		server, err := miniredis.Run()
		So(err, ShouldBeNil)

		store, err := repository.Open(ctx, repository.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
		So(err, ShouldBeNil)
		reports := cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: server.Addr()}), time.Minute)

		svc := service.New(service.WithWorkerCount(1), service.WithStore(store), service.WithReportCache(reports))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() {
			svc.Stop()
			server.Close()
		})

		Convey("When a report is computed", func() {
			submitAll(ctx, svc, biasedPanel(backend))
			report := waitForRecords(svc, backend, 9)
			So(report, ShouldNotBeNil)

			Convey("Then it is cached under the scope key", func() {
				deadline := time.Now().Add(time.Second)
				for !server.Exists(cache.Key(backend)) && time.Now().Before(deadline) {
					_, _ = svc.Report(ctx, backend)
					time.Sleep(10 * time.Millisecond)
				}
				So(server.Exists(cache.Key(backend)), ShouldBeTrue)

				cached, err := svc.Report(ctx, backend)
				So(err, ShouldBeNil)
				again, err := svc.Report(ctx, backend)
				So(err, ShouldBeNil)
				So(again.ComputedAt.Equal(cached.ComputedAt), ShouldBeTrue)
				So(again.Records, ShouldEqual, 9)
			})

			Convey("And a new evaluation invalidates it", func() {
				submitAll(ctx, svc, []model.Event{{Scope: backend, SubjectID: "S4", RaterID: "R1", Score: 3}})
				updated := waitForRecords(svc, backend, 10)
				So(updated, ShouldNotBeNil)
				So(updated.Reliability.N, ShouldEqual, 4)
			})
		})
	})
}
