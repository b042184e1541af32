package geofence_test

import (
	"sync"
	"testing"

	"github.com/okian/herdwatch/internal/domain/geofence"
	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestRegistry(t *testing.T) {
	convey.Convey("Given an empty registry", t, func() {
		r := geofence.NewRegistry()

		convey.Convey("Then an unknown name loads as no fence", func() {
			p := r.Load("default")
			convey.So(p.Defined(), convey.ShouldBeFalse)
			convey.So(p.Contains(model.Point{Lat: 10, Lon: 10}).Fallback, convey.ShouldEqual, geofence.FallbackNoFence)
		})

		convey.Convey("When storing and deleting a fence", func() {
			r.Store("default", geofence.NewPolygon(unitSquare()))
			convey.So(r.Load("default").Defined(), convey.ShouldBeTrue)
			convey.So(r.Names(), convey.ShouldResemble, []string{"default"})

			r.Delete("default")
			convey.So(r.Load("default").Defined(), convey.ShouldBeFalse)
			convey.So(r.Names(), convey.ShouldBeEmpty)
		})

		convey.Convey("When readers race a replacement", func() {
			small := geofence.NewPolygon(unitSquare())
			big := geofence.NewPolygon([]model.Point{
				{Lat: 0, Lon: 0}, {Lat: 0, Lon: 10}, {Lat: 5, Lon: 15}, {Lat: 10, Lon: 10}, {Lat: 10, Lon: 0},
			})
			r.Store("default", small)

			var wg sync.WaitGroup
			mixed := make(chan []model.Point, 1)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 2000; j++ {
						vs := r.Load("default").Vertices()
						if len(vs) != 4 && len(vs) != 5 {
							select {
							case mixed <- vs:
							default:
							}
						}
						if len(vs) == 4 && vs[1] != (model.Point{Lat: 0, Lon: 1}) {
							select {
							case mixed <- vs:
							default:
							}
						}
					}
				}()
			}
			for i := 0; i < 500; i++ {
				if i%2 == 0 {
					r.Store("default", big)
				} else {
					r.Store("default", small)
				}
			}
			wg.Wait()

			convey.Convey("Then every read sees a whole polygon", func() {
				convey.So(len(mixed), convey.ShouldEqual, 0)
			})
		})
	})
}
