package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/herdwatch/internal/adapters/repository"
	"github.com/okian/herdwatch/internal/domain/model"
	logging "github.com/okian/herdwatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type backend struct {
	name   string
	stores func(t *testing.T) (repository.EntityStore, repository.FenceStore)
}

func backends() []backend {
	return []backend{
		{"memory", func(*testing.T) (repository.EntityStore, repository.FenceStore) {
			return repository.NewMemoryEntityStore(), repository.NewMemoryFenceStore()
		}},
		{"sqlite", func(t *testing.T) (repository.EntityStore, repository.FenceStore) {
			db, err := repository.OpenSQLite(context.Background(), ":memory:")
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = db.Close() })
			return repository.NewSQLiteEntityStore(db), repository.NewSQLiteFenceStore(db)
		}},
	}
}

func TestEntityStores(t *testing.T) {
	for _, b := range backends() {
		convey.Convey("Given an empty "+b.name+" entity store", t, func() {
			ctx := context.Background()
			ents, _ := b.stores(t)

			convey.Convey("When an entity is created", func() {
				battery := 90
				err := ents.Create(ctx, model.TrackedEntity{ID: "cow-1", Name: "Bessie", Battery: &battery})
				convey.So(err, convey.ShouldBeNil)

				convey.Convey("Then it reads back UNKNOWN without a position", func() {
					got, err := ents.Get(ctx, "cow-1")
					convey.So(err, convey.ShouldBeNil)
					convey.So(got.Name, convey.ShouldEqual, "Bessie")
					convey.So(got.Status, convey.ShouldEqual, model.StatusUnknown)
					convey.So(got.Position, convey.ShouldBeNil)
					convey.So(*got.Battery, convey.ShouldEqual, 90)
					convey.So(got.LastFixAt.IsZero(), convey.ShouldBeTrue)
					convey.So(got.CreatedAt.IsZero(), convey.ShouldBeFalse)
				})

				convey.Convey("Then creating it again conflicts", func() {
					err := ents.Create(ctx, model.TrackedEntity{ID: "cow-1", Name: "Other"})
					convey.So(errors.Is(err, repository.ErrConflict), convey.ShouldBeTrue)
				})

				convey.Convey("And its state is updated", func() {
					at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
					err := ents.UpdateState(ctx, "cow-1", model.StateUpdate{
						Position:  &model.Point{Lat: 45.17, Lon: 9.23},
						Status:    model.StatusInside,
						LastFixAt: at,
					})
					convey.So(err, convey.ShouldBeNil)

					convey.Convey("Then position, status and fix time change while battery is kept", func() {
						got, err := ents.Get(ctx, "cow-1")
						convey.So(err, convey.ShouldBeNil)
						convey.So(got.Status, convey.ShouldEqual, model.StatusInside)
						convey.So(*got.Position, convey.ShouldResemble, model.Point{Lat: 45.17, Lon: 9.23})
						convey.So(*got.Battery, convey.ShouldEqual, 90)
						convey.So(got.LastFixAt.Equal(at), convey.ShouldBeTrue)
					})

					convey.Convey("And a status-only update follows", func() {
						convey.So(ents.UpdateState(ctx, "cow-1", model.StateUpdate{Status: model.StatusOutside}), convey.ShouldBeNil)

						convey.Convey("Then the stored position and fix time survive", func() {
							got, _ := ents.Get(ctx, "cow-1")
							convey.So(got.Status, convey.ShouldEqual, model.StatusOutside)
							convey.So(got.Position, convey.ShouldNotBeNil)
							convey.So(got.LastFixAt.Equal(at), convey.ShouldBeTrue)
						})
					})
				})

				convey.Convey("And it is deleted", func() {
					convey.So(ents.Delete(ctx, "cow-1"), convey.ShouldBeNil)

					convey.Convey("Then it is gone", func() {
						_, err := ents.Get(ctx, "cow-1")
						convey.So(errors.Is(err, model.ErrEntityNotFound), convey.ShouldBeTrue)
						convey.So(errors.Is(ents.Delete(ctx, "cow-1"), model.ErrEntityNotFound), convey.ShouldBeTrue)
					})
				})
			})

			convey.Convey("When entities are listed", func() {
				base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
				for i, id := range []string{"c", "a", "b"} {
					convey.So(ents.Create(ctx, model.TrackedEntity{ID: id, Name: id, CreatedAt: base.Add(time.Duration(i) * time.Second)}), convey.ShouldBeNil)
				}
				list, err := ents.List(ctx)

				convey.Convey("Then they come back in creation order", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(len(list), convey.ShouldEqual, 3)
					convey.So(list[0].ID, convey.ShouldEqual, "c")
					convey.So(list[1].ID, convey.ShouldEqual, "a")
					convey.So(list[2].ID, convey.ShouldEqual, "b")
				})
			})

			convey.Convey("When updating an unknown entity", func() {
				err := ents.UpdateState(ctx, "ghost", model.StateUpdate{Status: model.StatusInside})

				convey.Convey("Then ErrEntityNotFound is returned", func() {
					convey.So(errors.Is(err, model.ErrEntityNotFound), convey.ShouldBeTrue)
				})
			})
		})
	}
}

func TestFenceStores(t *testing.T) {
	square := []model.Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 0}}
	triangle := []model.Point{{Lat: 5, Lon: 5}, {Lat: 6, Lon: 5}, {Lat: 5, Lon: 6}}

	for _, b := range backends() {
		convey.Convey("Given an empty "+b.name+" fence store", t, func() {
			ctx := context.Background()
			_, fences := b.stores(t)

			convey.Convey("Then an unknown fence is not found", func() {
				_, err := fences.Get(ctx, "default")
				convey.So(errors.Is(err, model.ErrFenceNotFound), convey.ShouldBeTrue)
			})

			convey.Convey("When a fence is replaced twice", func() {
				_, err := fences.Replace(ctx, "default", square)
				convey.So(err, convey.ShouldBeNil)
				g, err := fences.Replace(ctx, "default", triangle)
				convey.So(err, convey.ShouldBeNil)

				convey.Convey("Then only the new vertices remain, in order", func() {
					convey.So(g.Vertices, convey.ShouldResemble, triangle)
					got, err := fences.Get(ctx, "default")
					convey.So(err, convey.ShouldBeNil)
					convey.So(got.Vertices, convey.ShouldResemble, triangle)
					convey.So(got.UpdatedAt.IsZero(), convey.ShouldBeFalse)
				})

				convey.Convey("And a second named fence is added", func() {
					_, err := fences.Replace(ctx, "north", square)
					convey.So(err, convey.ShouldBeNil)

					convey.Convey("Then both are listed by name", func() {
						list, err := fences.List(ctx)
						convey.So(err, convey.ShouldBeNil)
						convey.So(len(list), convey.ShouldEqual, 2)
						convey.So(list[0].Name, convey.ShouldEqual, "default")
						convey.So(list[1].Name, convey.ShouldEqual, "north")
						convey.So(list[1].Vertices, convey.ShouldResemble, square)
					})
				})

				convey.Convey("And it is deleted", func() {
					convey.So(fences.Delete(ctx, "default"), convey.ShouldBeNil)

					convey.Convey("Then it is gone", func() {
						_, err := fences.Get(ctx, "default")
						convey.So(errors.Is(err, model.ErrFenceNotFound), convey.ShouldBeTrue)
						convey.So(errors.Is(fences.Delete(ctx, "default"), model.ErrFenceNotFound), convey.ShouldBeTrue)
					})
				})
			})

			convey.Convey("When readers race fence replacements", func() {
				_, err := fences.Replace(ctx, "default", square)
				convey.So(err, convey.ShouldBeNil)

				var (
					wg    sync.WaitGroup
					mu    sync.Mutex
					torn  int
					reads int
				)
				for r := 0; r < 4; r++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						for i := 0; i < 50; i++ {
							g, err := fences.Get(ctx, "default")
							if err != nil {
								continue
							}
							mu.Lock()
							reads++
							if len(g.Vertices) != len(square) && len(g.Vertices) != len(triangle) {
								torn++
							}
							mu.Unlock()
						}
					}()
				}
				for i := 0; i < 50; i++ {
					next := square
					if i%2 == 0 {
						next = triangle
					}
					_, _ = fences.Replace(ctx, "default", next)
				}
				wg.Wait()

				convey.Convey("Then no reader sees a partial vertex list", func() {
					convey.So(reads, convey.ShouldBeGreaterThan, 0)
					convey.So(torn, convey.ShouldEqual, 0)
				})
			})
		})
	}
}

func TestOpen(t *testing.T) {
	convey.Convey("Given store settings", t, func() {
		_ = logging.Init()
		ctx := context.Background()

		convey.Convey("When the memory driver is selected", func() {
			s, err := repository.Open(ctx, repository.Settings{Driver: "memory"})

			convey.Convey("Then both stores are available", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(s.Entities, convey.ShouldNotBeNil)
				convey.So(s.Fences, convey.ShouldNotBeNil)
				convey.So(s.Driver, convey.ShouldEqual, "memory")
				convey.So(s.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the sqlite driver is selected", func() {
			s, err := repository.Open(ctx, repository.Settings{Driver: "sqlite", SQLitePath: ":memory:"})

			convey.Convey("Then the schema is ready for use", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(s.Entities.Create(ctx, model.TrackedEntity{ID: "x", Name: "x"}), convey.ShouldBeNil)
				convey.So(s.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When an unknown driver is selected", func() {
			_, err := repository.Open(ctx, repository.Settings{Driver: "redis"})

			convey.Convey("Then ErrUnknownDriver is returned", func() {
				convey.So(errors.Is(err, repository.ErrUnknownDriver), convey.ShouldBeTrue)
			})
		})
	})
}
