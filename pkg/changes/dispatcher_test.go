package changes

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pario-ai/sqlactor/pkg/models"
)

func receive(t *testing.T, ch <-chan models.ChangeEvent, n int) []models.ChangeEvent {
	t.Helper()
	var got []models.ChangeEvent
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case ev := <-ch:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(got), n)
		}
	}
	return got
}

func TestDeliveryOrder(t *testing.T) {
	ch := make(chan models.ChangeEvent)
	d := New(ch, nil)
	defer d.Close()

	d.Publish([]models.ChangeEvent{
		{Action: models.ActionInsert, Table: "t", RowID: 1},
		{Action: models.ActionInsert, Table: "t", RowID: 2},
	})
	d.Publish(nil)
	d.Publish([]models.ChangeEvent{
		{Action: models.ActionDelete, Table: "t", RowID: 1},
	})

	want := []models.ChangeEvent{
		{Action: models.ActionInsert, Table: "t", RowID: 1},
		{Action: models.ActionInsert, Table: "t", RowID: 2},
		{Action: models.ActionDelete, Table: "t", RowID: 1},
	}
	if diff := cmp.Diff(want, receive(t, ch, 3)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishDoesNotBlock(t *testing.T) {
	ch := make(chan models.ChangeEvent) // nobody reads
	d := New(ch, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			d.Publish([]models.ChangeEvent{{Action: models.ActionUpdate, Table: "t", RowID: int64(i)}})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled observer")
	}

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a stalled observer")
	}
}

func TestCloseIdempotent(t *testing.T) {
	d := New(make(chan models.ChangeEvent, 1), nil)
	d.Close()
	d.Close()
}
