package herdsim

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/herdwatch/internal/adapters/alerts"
	"github.com/okian/herdwatch/internal/adapters/http/api"
	"github.com/okian/herdwatch/internal/adapters/repository"
	service "github.com/okian/herdwatch/internal/app"
	"github.com/okian/herdwatch/internal/domain/geofence"
	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

var pasture = model.Point{Lat: 45.1743, Lon: 9.2394}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	_ = logger.Init(logger.WithWriter(io.Discard))

	stores := &repository.Stores{
		Entities: repository.NewMemoryEntityStore(),
		Fences:   repository.NewMemoryFenceStore(),
		Driver:   "memory",
	}
	dispatcher := alerts.NewDispatcher(alerts.NewNotifier(alerts.NewLogService(logger.Get())))
	svc := service.New(stores, dispatcher,
		service.WithWorkerCount(4),
		service.WithEvaluationInterval(0))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}

	mux := http.NewServeMux()
	api.NewServer(svc).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Stop(context.Background())
	})
	return srv
}

func TestHerd(t *testing.T) {
	convey.Convey("Given a square fence around the pasture", t, func() {
		vertices := squareFence(pasture, 0.01)
		fence := geofence.NewPolygon(vertices)

		convey.Convey("Then the centre is inside and the corners are clockwise from the north-west", func() {
			convey.So(fence.Defined(), convey.ShouldBeTrue)
			convey.So(fence.Contains(pasture).Inside, convey.ShouldBeTrue)
			convey.So(vertices[0].Lat, convey.ShouldBeGreaterThan, pasture.Lat)
			convey.So(vertices[0].Lon, convey.ShouldBeLessThan, pasture.Lon)
			convey.So(vertices[2].Lat, convey.ShouldBeLessThan, pasture.Lat)
			convey.So(vertices[2].Lon, convey.ShouldBeGreaterThan, pasture.Lon)
		})

		convey.Convey("When a herd walks with a fixed seed", func() {
			cfg := &Config{Animals: 5, Center: pasture}
			a, b := newHerd(cfg), newHerd(cfg)
			for i := range b {
				b[i].ID = a[i].ID
			}
			walk(rand.New(rand.NewPCG(7, 7)), a, 0.002)
			walk(rand.New(rand.NewPCG(7, 7)), b, 0.002)

			convey.Convey("Then the walk is reproducible and bounded by the step", func() {
				convey.So(a, convey.ShouldResemble, b)
				for _, animal := range a {
					convey.So(animal.Position.Lat, convey.ShouldAlmostEqual, pasture.Lat, 0.002)
					convey.So(animal.Position.Lon, convey.ShouldAlmostEqual, pasture.Lon, 0.002)
					convey.So(animal.Battery, convey.ShouldBeBetweenOrEqual, fullBattery-1, fullBattery)
				}
			})
		})

		convey.Convey("When one animal is placed beyond the east edge", func() {
			herd := newHerd(&Config{Animals: 2, Center: pasture})
			herd[1].Position.Lon += 0.05
			outside := expectedOutside(herd, fence)

			convey.Convey("Then only that animal is expected outside", func() {
				convey.So(outside, convey.ShouldHaveLength, 1)
				convey.So(outside[herd[1].ID], convey.ShouldBeTrue)
			})
		})

		convey.Convey("When fixes are built for a round", func() {
			herd := newHerd(&Config{Animals: 3, Center: pasture})
			ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
			fixes := fixesFor(herd, ts)

			convey.Convey("Then every fix has a unique id and the round timestamp", func() {
				seen := map[string]bool{}
				for i, f := range fixes {
					convey.So(f.EntityID, convey.ShouldEqual, herd[i].ID)
					convey.So(f.TS, convey.ShouldEqual, "2026-05-01T12:00:00Z")
					seen[f.FixID] = true
				}
				convey.So(seen, convey.ShouldHaveLength, 3)
			})
		})
	})
}

func TestSimulate(t *testing.T) {
	convey.Convey("Given a running service", t, func() {
		srv := newTestServer(t)
		out := filepath.Join(t.TempDir(), "herd.json")

		convey.Convey("When a herd wanders in a tight pasture", func() {
			stats, err := Simulate(context.Background(), &Config{
				BaseURL:    srv.URL,
				Animals:    20,
				Rounds:     8,
				Workers:    4,
				Timeout:    5 * time.Second,
				Center:     pasture,
				HalfSide:   0.002,
				Step:       0.001,
				Seed:       42,
				Settle:     5 * time.Second,
				OutputFile: out,
			})

			convey.Convey("Then the service agrees with the simulated positions", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(stats.AnimalsRegistered, convey.ShouldEqual, 20)
				convey.So(stats.FixesSubmitted, convey.ShouldEqual, 160)
				convey.So(stats.FixesAccepted, convey.ShouldEqual, 160)
				convey.So(stats.FixesFailed, convey.ShouldEqual, 0)
				convey.So(stats.StatusMismatches, convey.ShouldEqual, 0)
				convey.So(stats.ReportedOutside, convey.ShouldEqual, stats.ExpectedOutside)
				_, statErr := os.Stat(out)
				convey.So(statErr, convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given no service", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		convey.Convey("When a simulation starts", func() {
			_, err := Simulate(context.Background(), &Config{
				BaseURL: srv.URL, Animals: 1, Rounds: 1, Center: pasture, HalfSide: 0.01, Timeout: time.Second,
			})

			convey.Convey("Then the health check fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "health check")
			})
		})
	})
}

func TestHTTPClient(t *testing.T) {
	convey.Convey("Given a server answering with a fixed status", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/positions" {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":"backpressure","message":"fix queue is full"}`))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()
		client := newHTTPClient(srv.URL, time.Second)

		convey.Convey("When a fix is rejected for backpressure", func() {
			res := submitSingleFix(context.Background(), client, Fix{FixID: "f", EntityID: "e"})

			convey.Convey("Then it counts as failed", func() {
				convey.So(res, convey.ShouldEqual, resultFailed)
			})
		})

		convey.Convey("When an unknown entity is named", func() {
			code, err := client.DoJSON(context.Background(), http.MethodGet, "/entities/x", nil, nil, http.StatusOK)

			convey.Convey("Then the status is surfaced", func() {
				convey.So(code, convey.ShouldEqual, http.StatusNotFound)
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
