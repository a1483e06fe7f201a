package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/concord/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func evaluation(id string) model.Event {
	return model.Event{
		EventID:   id,
		Scope:     model.Scope{OrganizationID: "acme", AssessmentID: "backend"},
		SubjectID: "S1",
		RaterID:   "R1",
		Score:     4,
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	Convey("Given a queue with capacity two", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))
		ctx := context.Background()
		Reset(func() { _ = q.Close() })

		Convey("Then it starts empty", func() {
			So(q.Len(ctx), ShouldEqual, 0)
			So(q.IsClosed(), ShouldBeFalse)
		})

		Convey("When an evaluation is enqueued and dequeued", func() {
			So(q.Enqueue(ctx, evaluation("e1")), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 1)
			got := <-q.Dequeue(ctx)

			Convey("Then it comes out unchanged", func() {
				So(got, ShouldResemble, evaluation("e1"))
			})
		})

		Convey("When the queue is full", func() {
			So(q.Enqueue(ctx, evaluation("e1")), ShouldBeTrue)
			So(q.Enqueue(ctx, evaluation("e2")), ShouldBeTrue)

			Convey("Then further evaluations are refused without blocking", func() {
				So(q.Enqueue(ctx, evaluation("e3")), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 2)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then enqueue is refused", func() {
				So(q.Enqueue(cctx, evaluation("e1")), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 0)
			})
		})
	})
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	Convey("Given producers and consumers sharing a queue", t, func() {
		q := NewInMemoryQueue(WithCapacity(100))
		ctx := context.Background()
		const producers, perProducer = 10, 100

		var consumed sync.Map
		var cwg sync.WaitGroup
		for i := 0; i < 4; i++ {
			cwg.Add(1)
			go func() {
				defer cwg.Done()
				for e := range q.Dequeue(ctx) {
					consumed.Store(e.EventID, true)
				}
			}()
		}

		var pwg sync.WaitGroup
		for p := 0; p < producers; p++ {
			pwg.Add(1)
			go func(p int) {
				defer pwg.Done()
				for j := 0; j < perProducer; j++ {
					for !q.Enqueue(ctx, evaluation(fmt.Sprintf("e%d_%d", p, j))) {
						time.Sleep(time.Millisecond)
					}
				}
			}(p)
		}
		pwg.Wait()
		So(q.Close(), ShouldBeNil)
		cwg.Wait()

		Convey("Then every evaluation is delivered exactly once", func() {
			n := 0
			consumed.Range(func(_, _ any) bool { n++; return true })
			So(n, ShouldEqual, producers*perProducer)
			So(q.Len(ctx), ShouldEqual, 0)
		})
	})
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	Convey("Given a queue holding two evaluations", t, func() {
		q := NewInMemoryQueue(WithCapacity(10))
		ctx := context.Background()
		So(q.Enqueue(ctx, evaluation("e1")), ShouldBeTrue)
		So(q.Enqueue(ctx, evaluation("e2")), ShouldBeTrue)

		Convey("When it is closed", func() {
			So(q.Close(), ShouldBeNil)

			Convey("Then new evaluations are refused", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, evaluation("e3")), ShouldBeFalse)
			})

			Convey("And queued evaluations are still drained before the channel closes", func() {
				var ids []string
				timeout := time.After(time.Second)
				ch := q.Dequeue(ctx)
			loop:
				for {
					select {
					case e, ok := <-ch:
						if !ok {
							break loop
						}
						ids = append(ids, e.EventID)
					case <-timeout:
						break loop
					}
				}
				So(ids, ShouldResemble, []string{"e1", "e2"})
			})

			Convey("And closing again is harmless", func() {
				So(q.Close(), ShouldBeNil)
			})
		})
	})
}
