package geofence_test

import (
	"math"
	"testing"

	"github.com/okian/herdwatch/internal/domain/geofence"
	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func unitSquare() []model.Point {
	return []model.Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 0}}
}

func TestPolygon_Contains(t *testing.T) {
	convey.Convey("Given the unit square", t, func() {
		p := geofence.NewPolygon(unitSquare())

		convey.Convey("Then an interior point is inside and computed", func() {
			r := p.Contains(model.Point{Lat: 0.5, Lon: 0.5})
			convey.So(r.Inside, convey.ShouldBeTrue)
			convey.So(r.Computed, convey.ShouldBeTrue)
			convey.So(r.Fallback, convey.ShouldEqual, geofence.FallbackNone)
		})

		convey.Convey("Then an exterior point is outside", func() {
			r := p.Contains(model.Point{Lat: 2, Lon: 2})
			convey.So(r.Inside, convey.ShouldBeFalse)
			convey.So(r.Computed, convey.ShouldBeTrue)
		})

		convey.Convey("Then the polygon is defined with four vertices", func() {
			convey.So(p.Defined(), convey.ShouldBeTrue)
			convey.So(p.Len(), convey.ShouldEqual, 4)
		})
	})

	convey.Convey("Given a polygon with fewer than 3 vertices", t, func() {
		cases := [][]model.Point{
			nil,
			{{Lat: 1, Lon: 1}},
			{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}},
		}

		convey.Convey("Then every point is inside by the no-fence fallback", func() {
			for _, vs := range cases {
				for _, pt := range []model.Point{{Lat: 0, Lon: 0}, {Lat: 89, Lon: -179}, {Lat: 1, Lon: 1}} {
					r := geofence.NewPolygon(vs).Contains(pt)
					convey.So(r.Inside, convey.ShouldBeTrue)
					convey.So(r.Computed, convey.ShouldBeFalse)
					convey.So(r.Fallback, convey.ShouldEqual, geofence.FallbackNoFence)
					convey.So(geofence.Contains(pt, vs), convey.ShouldBeTrue)
				}
			}
		})
	})

	convey.Convey("Given a self-intersecting bowtie", t, func() {
		bowtie := []model.Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 0}}
		p := geofence.NewPolygon(bowtie)

		convey.Convey("Then containment fails open without panicking", func() {
			var r geofence.Result
			convey.So(func() { r = p.Contains(model.Point{Lat: 5, Lon: 5}) }, convey.ShouldNotPanic)
			convey.So(r.Inside, convey.ShouldBeTrue)
			convey.So(r.Computed, convey.ShouldBeFalse)
			convey.So(r.Fallback, convey.ShouldEqual, geofence.FallbackInvalidGeometry)
			convey.So(p.Defined(), convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given a collinear polygon", t, func() {
		line := []model.Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}

		convey.Convey("Then it is invalid geometry and fails open", func() {
			r := geofence.NewPolygon(line).Contains(model.Point{Lat: 10, Lon: 10})
			convey.So(r.Inside, convey.ShouldBeTrue)
			convey.So(r.Fallback, convey.ShouldEqual, geofence.FallbackInvalidGeometry)
		})
	})

	convey.Convey("Given a polygon with a non-finite vertex", t, func() {
		vs := unitSquare()
		vs[2].Lat = math.Inf(1)

		convey.Convey("Then it fails open", func() {
			r := geofence.NewPolygon(vs).Contains(model.Point{Lat: 3, Lon: 3})
			convey.So(r.Inside, convey.ShouldBeTrue)
			convey.So(r.Fallback, convey.ShouldEqual, geofence.FallbackInvalidGeometry)
		})
	})

	convey.Convey("Given a square with a duplicated closing vertex", t, func() {
		closed := append(unitSquare(), model.Point{Lat: 0, Lon: 0})
		p := geofence.NewPolygon(closed)

		convey.Convey("Then the duplicate is dropped and containment still computes", func() {
			convey.So(p.Len(), convey.ShouldEqual, 4)
			convey.So(p.Contains(model.Point{Lat: 0.5, Lon: 0.5}).Inside, convey.ShouldBeTrue)
			convey.So(p.Contains(model.Point{Lat: 2, Lon: 2}).Inside, convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given the pasture fence from the field scenario", t, func() {
		pasture := []model.Point{
			{Lat: 45.1700, Lon: 9.2300},
			{Lat: 45.1800, Lon: 9.2300},
			{Lat: 45.1800, Lon: 9.2450},
			{Lat: 45.1700, Lon: 9.2450},
		}
		p := geofence.NewPolygon(pasture)

		convey.So(p.Contains(model.Point{Lat: 45.1743, Lon: 9.2394}).Inside, convey.ShouldBeTrue)
		convey.So(p.Contains(model.Point{Lat: 45.1900, Lon: 9.2500}).Inside, convey.ShouldBeFalse)
	})

	convey.Convey("Given a polygon built from a caller slice", t, func() {
		vs := unitSquare()
		p := geofence.NewPolygon(vs)
		vs[0] = model.Point{Lat: 50, Lon: 50}

		convey.Convey("Then later mutation of the slice has no effect", func() {
			convey.So(p.Vertices()[0], convey.ShouldResemble, model.Point{Lat: 0, Lon: 0})
		})
	})
}

func TestNormalize(t *testing.T) {
	convey.Convey("Given vertex lists with duplicates", t, func() {
		a, b, c := model.Point{Lat: 0, Lon: 0}, model.Point{Lat: 0, Lon: 1}, model.Point{Lat: 1, Lon: 1}

		convey.So(geofence.Normalize([]model.Point{a, b, c, a}), convey.ShouldResemble, []model.Point{a, b, c})
		convey.So(geofence.Normalize([]model.Point{a, b, b, c}), convey.ShouldResemble, []model.Point{a, b, c})
		convey.So(geofence.Normalize([]model.Point{a, b, c}), convey.ShouldResemble, []model.Point{a, b, c})
		convey.So(geofence.Normalize(nil), convey.ShouldBeEmpty)
	})
}
