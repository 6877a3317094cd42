package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/pulse/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWindowDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a deduper", t, func() {
		d := dedupe.NewWindowDeduper(dedupe.WithMaxSize(3))

		Convey("When an id is recorded for the first time", func() {
			seen := d.SeenAndRecord(ctx, "evt-1")

			Convey("Then it is new and counted", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And a redelivery is reported as seen", func() {
				So(d.SeenAndRecord(ctx, "evt-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When more ids arrive than the window holds", func() {
			for i := 1; i <= 4; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("evt-%d", i))
			}

			Convey("Then the oldest id is forgotten first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "evt-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "evt-2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "evt-1"), ShouldBeFalse)
			})
		})

		Convey("When an id is unrecorded", func() {
			d.SeenAndRecord(ctx, "evt-1")
			d.SeenAndRecord(ctx, "evt-2")
			d.Unrecord(ctx, "evt-1")
			d.Unrecord(ctx, "never-seen")

			Convey("Then it is accepted again", func() {
				So(d.Size(), ShouldEqual, 1)
				So(d.SeenAndRecord(ctx, "evt-1"), ShouldBeFalse)
			})

			Convey("And eviction still drops only remembered ids", func() {
				d.SeenAndRecord(ctx, "evt-3")
				d.SeenAndRecord(ctx, "evt-4")
				d.SeenAndRecord(ctx, "evt-5")
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "evt-5"), ShouldBeTrue)
			})
		})
	})

	Convey("Given a non-positive size", t, func() {
		d := dedupe.NewWindowDeduper(dedupe.WithMaxSize(0))

		Convey("Then the default window is used", func() {
			for i := 0; i < 100; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("evt-%d", i))
			}
			So(d.Size(), ShouldEqual, 100)
		})
	})

	Convey("Given concurrent writers", t, func() {
		d := dedupe.NewWindowDeduper(dedupe.WithMaxSize(1000))
		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("evt-%d", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then every id is accepted exactly once", func() {
			So(fresh, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, 100)
		})
	})
}
