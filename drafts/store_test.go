package drafts

import (
	"errors"
	"testing"
)

func payload(lat, lon float64) Payload {
	return Payload{Latitude: lat, Longitude: lon, PhotoRef: "/tmp/photo.jpg"}
}

func TestEnqueueAndListFIFO(t *testing.T) {
	store, err := Open(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	first, err := store.Enqueue(payload(40.0, -111.0))
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	second, err := store.Enqueue(payload(41.0, -112.0))
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	all, err := store.List()
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(all))
	}
	if all[0].ID != first.ID || all[1].ID != second.ID {
		t.Errorf("drafts out of order: %s, %s", all[0].ID, all[1].ID)
	}
	if all[0].Status != StatusPending {
		t.Errorf("expected new draft pending, got %s", all[0].Status)
	}
}

func TestOrderSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, 10)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	a, _ := store.Enqueue(payload(40.0, -111.0))
	b, _ := store.Enqueue(payload(41.0, -112.0))

	// Simulate an app restart.
	reopened, err := Open(dir, 10)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	all, err := reopened.List()
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(all) != 2 || all[0].ID != a.ID || all[1].ID != b.ID {
		t.Fatalf("order lost across reopen: %+v", all)
	}

	// New drafts must sort after the recovered ones.
	c, err := reopened.Enqueue(payload(42.0, -113.0))
	if err != nil {
		t.Fatalf("Enqueue after reopen returned error: %v", err)
	}
	if c.Seq <= b.Seq {
		t.Errorf("expected new seq after %d, got %d", b.Seq, c.Seq)
	}
}

func TestEnqueueStorageFull(t *testing.T) {
	store, err := Open(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	store.Enqueue(payload(40.0, -111.0))
	store.Enqueue(payload(41.0, -112.0))

	if _, err := store.Enqueue(payload(42.0, -113.0)); !errors.Is(err, ErrStorageFull) {
		t.Errorf("expected ErrStorageFull at cap, got %v", err)
	}

	// Removing one makes room again.
	all, _ := store.List()
	if err := store.Remove(all[0].ID); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if _, err := store.Enqueue(payload(42.0, -113.0)); err != nil {
		t.Errorf("expected room after removal, got %v", err)
	}
}

func TestMarkAttemptAndFailed(t *testing.T) {
	store, err := Open(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	d, _ := store.Enqueue(payload(40.0, -111.0))

	if err := store.MarkAttempt(d.ID, errors.New("connection reset")); err != nil {
		t.Fatalf("MarkAttempt returned error: %v", err)
	}
	got, _ := store.Get(d.ID)
	if got.Attempts != 1 || got.LastError == "" {
		t.Errorf("expected recorded attempt, got %+v", got)
	}
	if got.Status != StatusPending {
		t.Errorf("transient failure must keep the draft pending, got %s", got.Status)
	}

	if err := store.MarkFailed(d.ID, errors.New("400 bad request")); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}
	got, _ = store.Get(d.ID)
	if got.Status != StatusFailed {
		t.Errorf("expected failed status, got %s", got.Status)
	}

	// Failed drafts drop out of the pending queue but stay listed.
	pending, _ := store.Pending()
	if len(pending) != 0 {
		t.Errorf("expected no pending drafts, got %d", len(pending))
	}
	all, _ := store.List()
	if len(all) != 1 {
		t.Errorf("failed draft must stay queued, got %d drafts", len(all))
	}
}

func TestRetryResetsFailedDraft(t *testing.T) {
	store, err := Open(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	d, _ := store.Enqueue(payload(40.0, -111.0))
	store.MarkAttempt(d.ID, errors.New("timeout"))
	store.MarkFailed(d.ID, errors.New("timeout"))

	if err := store.Retry(d.ID); err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	got, _ := store.Get(d.ID)
	if got.Status != StatusPending || got.Attempts != 0 || got.LastError != "" {
		t.Errorf("expected a clean pending draft after retry, got %+v", got)
	}
}

func TestSubmittingGuard(t *testing.T) {
	store, err := Open(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	a, _ := store.Enqueue(payload(40.0, -111.0))
	b, _ := store.Enqueue(payload(41.0, -112.0))

	if err := store.BeginSubmit(a.ID); err != nil {
		t.Fatalf("BeginSubmit returned error: %v", err)
	}
	if err := store.BeginSubmit(b.ID); !errors.Is(err, ErrDraftSubmitting) {
		t.Errorf("expected ErrDraftSubmitting while another draft is in flight, got %v", err)
	}

	store.EndSubmit(a.ID)
	if err := store.BeginSubmit(b.ID); err != nil {
		t.Errorf("expected BeginSubmit to succeed after EndSubmit, got %v", err)
	}
	store.EndSubmit(b.ID)
}

func TestDiscardRemovesParkedDraft(t *testing.T) {
	store, err := Open(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	d, _ := store.Enqueue(payload(40.0, -111.0))
	store.MarkFailed(d.ID, errors.New("status 400"))

	if err := store.Discard(d.ID); err != nil {
		t.Fatalf("Discard returned error: %v", err)
	}
	all, _ := store.List()
	if len(all) != 0 {
		t.Errorf("expected empty spool after discard, got %d drafts", len(all))
	}
}

func TestDiscardRefusesInFlightDraft(t *testing.T) {
	store, err := Open(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	d, _ := store.Enqueue(payload(40.0, -111.0))

	if err := store.BeginSubmit(d.ID); err != nil {
		t.Fatalf("BeginSubmit returned error: %v", err)
	}
	if err := store.Discard(d.ID); !errors.Is(err, ErrDraftSubmitting) {
		t.Errorf("expected ErrDraftSubmitting for in-flight draft, got %v", err)
	}
	if _, err := store.Get(d.ID); err != nil {
		t.Errorf("in-flight draft must survive a refused discard: %v", err)
	}

	// After the submission lets go, the user may discard.
	store.EndSubmit(d.ID)
	if err := store.Discard(d.ID); err != nil {
		t.Errorf("expected discard to succeed after EndSubmit, got %v", err)
	}
}

func TestRemoveUnknownDraft(t *testing.T) {
	store, err := Open(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := store.Remove("draft-000000000099"); !errors.Is(err, ErrDraftNotFound) {
		t.Errorf("expected ErrDraftNotFound, got %v", err)
	}
}
