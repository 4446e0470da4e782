package matrix

import (
	"context"
	"testing"

	"maunium.net/go/mautrix/id"

	"github.com/aibo-bot/aibo/internal/aibo/store"
)

func newTestSyncStore(t *testing.T) *DBSyncStore {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return newDBSyncStore(st.DB())
}

func TestSyncStoreNextBatchRoundTrip(t *testing.T) {
	s := newTestSyncStore(t)
	ctx := context.Background()
	user := id.UserID("@aibo:example.org")

	token, err := s.LoadNextBatch(ctx, user)
	if err != nil {
		t.Fatalf("LoadNextBatch: %v", err)
	}
	if token != "" {
		t.Errorf("first run should have no token, got %q", token)
	}

	if err := s.SaveNextBatch(ctx, user, "s_100"); err != nil {
		t.Fatalf("SaveNextBatch: %v", err)
	}
	if err := s.SaveNextBatch(ctx, user, "s_200"); err != nil {
		t.Fatalf("SaveNextBatch: %v", err)
	}

	token, err = s.LoadNextBatch(ctx, user)
	if err != nil {
		t.Fatalf("LoadNextBatch: %v", err)
	}
	if token != "s_200" {
		t.Errorf("token = %q, want latest save", token)
	}
}

func TestSyncStoreKeysAreScoped(t *testing.T) {
	s := newTestSyncStore(t)
	ctx := context.Background()
	user := id.UserID("@aibo:example.org")
	other := id.UserID("@other:example.org")

	if err := s.SaveFilterID(ctx, user, "f_1"); err != nil {
		t.Fatalf("SaveFilterID: %v", err)
	}
	if err := s.SaveNextBatch(ctx, user, "s_1"); err != nil {
		t.Fatalf("SaveNextBatch: %v", err)
	}

	if got, _ := s.LoadFilterID(ctx, user); got != "f_1" {
		t.Errorf("filter = %q", got)
	}
	if got, _ := s.LoadNextBatch(ctx, user); got != "s_1" {
		t.Errorf("next batch = %q", got)
	}
	if got, _ := s.LoadNextBatch(ctx, other); got != "" {
		t.Errorf("other user's token = %q, want empty", got)
	}
}
