package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pmyapp/accord/internal/consent/flow"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	srv, err := NewServer(Config{
		HTTPAddr:     "127.0.0.1:0",
		DBPath:       filepath.Join(dir, "consent.db"),
		DraftsDBPath: filepath.Join(dir, "drafts.db"),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func TestServerSaveDraftRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	created, err := srv.Service().SaveDraft(ctx, flow.DraftPayload{
		OwnerUserID:   "user-1",
		EncounterType: "date",
		Parties:       []string{"@me", "@alice"},
	})
	if err != nil {
		t.Fatalf("save draft: %v", err)
	}

	got, _, err := srv.Service().GetContract(ctx, created.ID)
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	if got.EncounterType != "date" {
		t.Fatalf("encounter type = %q, want date", got.EncounterType)
	}
}

func TestFlowControllerPersistsAcrossInstances(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	first, err := srv.NewFlowController("user-1", "@me")
	if err != nil {
		t.Fatalf("new flow controller: %v", err)
	}
	if err := first.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if err := first.SetEncounterType(ctx, "date"); err != nil {
		t.Fatalf("set encounter type: %v", err)
	}

	second, err := srv.NewFlowController("user-1", "@me")
	if err != nil {
		t.Fatalf("new flow controller: %v", err)
	}
	if err := second.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if got := second.State().EncounterType; got != "date" {
		t.Fatalf("encounter type = %q, want date", got)
	}
}

func TestListenAndServeStopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.ListenAndServe(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-serveDone:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for server shutdown")
	}
}
