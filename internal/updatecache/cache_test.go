package updatecache

import (
	"math"
	"testing"
	"time"

	"github.com/wellsgz/rrdb/internal/rrd"
)

func newTestDB(t *testing.T) *rrd.Database {
	t.Helper()
	db, err := rrd.Create(rrd.Definition{
		Path:      "memory:" + t.Name(),
		Step:      10,
		StartTime: 0,
		DSs:       []rrd.DSDef{{Name: "g", Type: rrd.Gauge, Heartbeat: 30, Min: math.NaN(), Max: math.NaN()}},
		Archives:  []rrd.ArchiveDef{{CF: rrd.Average, XFF: 0.5, Steps: 1, Rows: 10}},
	})
	if err != nil {
		t.Fatalf("rrd.Create: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSubmitRejectsUnregisteredDatabase(t *testing.T) {
	c := New(time.Hour)
	if err := c.Submit("nope", 10, []string{"1"}); err == nil {
		t.Error("expected error submitting to an unregistered database")
	}
}

func TestFlushAppliesUpdatesInTimeOrder(t *testing.T) {
	db := newTestDB(t)
	c := New(time.Hour)
	c.Register("db", db)

	sub := c.Subscribe()

	// Submitted out of order; flush must sort them before applying.
	if err := c.Submit("db", 30, []string{"3"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := c.Submit("db", 10, []string{"1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := c.Submit("db", 20, []string{"2"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	c.flush()

	var results []CommitResult
	for i := 0; i < 3; i++ {
		select {
		case r := <-sub:
			results = append(results, r)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for commit result")
		}
	}

	for i, want := range []int64{10, 20, 30} {
		if results[i].Time != want {
			t.Errorf("result[%d].Time = %d, want %d", i, results[i].Time, want)
		}
		if results[i].Error != nil {
			t.Errorf("result[%d].Error = %v, want nil", i, results[i].Error)
		}
	}

	lut, err := db.Header().LastUpdateTime()
	if err != nil || lut != 30 {
		t.Errorf("LastUpdateTime() = %d, %v, want 30", lut, err)
	}
}

func TestUnregisterDropsPendingUpdates(t *testing.T) {
	db := newTestDB(t)
	c := New(time.Hour)
	c.Register("db", db)
	if err := c.Submit("db", 10, []string{"1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.Unregister("db")
	c.flush() // should be a no-op: nothing registered, nothing pending

	lut, err := db.Header().LastUpdateTime()
	if err != nil {
		t.Fatalf("LastUpdateTime: %v", err)
	}
	if lut != 0 {
		t.Errorf("LastUpdateTime() = %d, want 0 (no update applied)", lut)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	db := newTestDB(t)
	c := New(time.Hour)
	c.Register("db", db)

	sub := c.Subscribe()
	c.Unsubscribe(sub)

	if err := c.Submit("db", 10, []string{"1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.flush()

	select {
	case _, ok := <-sub:
		if ok {
			t.Error("expected channel to be closed after Unsubscribe, got a value")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected closed channel to return immediately")
	}
}

func TestStartStopFlushesPendingAndClosesSubscribers(t *testing.T) {
	db := newTestDB(t)
	c := New(time.Hour) // long enough that the ticker never fires during the test
	c.Register("db", db)
	sub := c.Subscribe()

	c.Start()
	if err := c.Submit("db", 10, []string{"1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.Stop()

	select {
	case r, ok := <-sub:
		if !ok {
			t.Fatal("expected one commit result before channel closes")
		}
		if r.Time != 10 {
			t.Errorf("CommitResult.Time = %d, want 10", r.Time)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for commit result")
	}

	select {
	case _, ok := <-sub:
		if ok {
			t.Error("expected subscriber channel to be closed after Stop")
		}
	case <-time.After(time.Second):
		t.Error("subscriber channel was not closed")
	}
}
