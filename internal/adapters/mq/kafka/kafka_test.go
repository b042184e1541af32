package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/herdwatch/internal/adapters/alerts"
	"github.com/okian/herdwatch/internal/domain/model"
	logging "github.com/okian/herdwatch/pkg/logger"
)

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafkago.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func TestAlertPublisher(t *testing.T) {
	convey.Convey("Given an alert publisher", t, func() {
		w := &fakeWriter{}
		p := &AlertPublisher{writer: w}
		battery := 30
		a := model.Alert{
			ID:      "al-1",
			Message: "Daisy left",
			Event: model.ContainmentEvent{
				EntityID: "cow-7", EntityName: "Daisy", Fence: "default",
				Previous: model.StatusInside, Current: model.StatusOutside,
				Position: model.Point{Lat: 45.19, Lon: 9.25}, Battery: &battery,
			},
		}

		convey.Convey("When sending with the alert in context", func() {
			err := p.Send(alerts.ContextWithAlert(context.Background(), a), "subject", "Daisy left")
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then a structured message keyed by entity is written", func() {
				convey.So(len(w.msgs), convey.ShouldEqual, 1)
				convey.So(string(w.msgs[0].Key), convey.ShouldEqual, "cow-7")

				var got AlertMessage
				convey.So(json.Unmarshal(w.msgs[0].Value, &got), convey.ShouldBeNil)
				convey.So(got.AlertID, convey.ShouldEqual, "al-1")
				convey.So(got.Previous, convey.ShouldEqual, "INSIDE")
				convey.So(got.Current, convey.ShouldEqual, "OUTSIDE")
				convey.So(got.Lat, convey.ShouldEqual, 45.19)
				convey.So(*got.Battery, convey.ShouldEqual, 30)
				convey.So(got.Message, convey.ShouldEqual, "Daisy left")
			})
		})

		convey.Convey("When sending a bare message", func() {
			convey.So(p.Send(context.Background(), "subject", "plain"), convey.ShouldBeNil)

			convey.Convey("Then only subject and message are set", func() {
				var got AlertMessage
				convey.So(json.Unmarshal(w.msgs[0].Value, &got), convey.ShouldBeNil)
				convey.So(got.EntityID, convey.ShouldBeEmpty)
				convey.So(got.Subject, convey.ShouldEqual, "subject")
			})
		})

		convey.Convey("When the broker fails", func() {
			w.err = errors.New("leader not available")

			convey.Convey("Then the error is returned", func() {
				convey.So(p.Send(context.Background(), "s", "m"), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestPositionConsumer(t *testing.T) {
	convey.Convey("Given a consumer over a topic with good, bad and busy messages", t, func() {
		_ = logging.Init()
		ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		good, _ := json.Marshal(PositionMessage{FixID: "f1", EntityID: "cow-1", Lat: 45.17, Lon: 9.23, TS: ts})
		busy, _ := json.Marshal(PositionMessage{FixID: "f2", EntityID: "cow-2", Lat: 45.17, Lon: 9.23, TS: ts})
		reader := &fakeReader{pending: []kafkago.Message{
			{Offset: 1, Value: good},
			{Offset: 2, Value: []byte("{not json")},
			{Offset: 3, Value: busy},
		}}

		errBusy := errors.New("queue full")
		var (
			mu       sync.Mutex
			got      []model.PositionFix
			attempts int
		)
		submit := func(_ context.Context, fix model.PositionFix) error {
			mu.Lock()
			defer mu.Unlock()
			if fix.FixID == "f2" {
				attempts++
				if attempts < 3 {
					return errBusy
				}
			}
			got = append(got, fix)
			return nil
		}
		c := newPositionConsumer(reader, submit, WithRetryable(func(err error) bool { return errors.Is(err, errBusy) }))

		convey.Convey("When it runs until the topic is drained", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				c.Run(ctx)
				close(done)
			}()
			deadline := time.Now().Add(2 * time.Second)
			for reader.commits() < 3 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			cancel()
			<-done

			convey.Convey("Then valid fixes are submitted, backpressure retried and every message committed", func() {
				mu.Lock()
				defer mu.Unlock()
				convey.So(len(got), convey.ShouldEqual, 2)
				convey.So(got[0].EntityID, convey.ShouldEqual, "cow-1")
				convey.So(got[0].TS.Equal(ts), convey.ShouldBeTrue)
				convey.So(got[1].FixID, convey.ShouldEqual, "f2")
				convey.So(attempts, convey.ShouldEqual, 3)
				convey.So(reader.commits(), convey.ShouldEqual, 3)
			})
		})
	})
}
