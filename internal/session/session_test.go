package session

import (
	"context"
	"path/filepath"
	"testing"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoggedInFlagRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	loggedIn, err := s.LoggedIn(ctx)
	if err != nil {
		t.Fatalf("LoggedIn: %v", err)
	}
	if loggedIn {
		t.Errorf("fresh store should report logged out")
	}

	if err := s.SetLoggedIn(ctx, true); err != nil {
		t.Fatalf("SetLoggedIn: %v", err)
	}
	if loggedIn, _ = s.LoggedIn(ctx); !loggedIn {
		t.Errorf("flag did not persist")
	}

	if err := s.SetLoggedIn(ctx, false); err != nil {
		t.Fatalf("SetLoggedIn(false): %v", err)
	}
	if loggedIn, _ = s.LoggedIn(ctx); loggedIn {
		t.Errorf("flag did not overwrite")
	}
}

func TestGenericFlags(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Errorf("Get(missing) = ok=%v err=%v, want absent", ok, err)
	}

	if err := s.Set(ctx, "theme", "dark"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "theme", "light"); err != nil {
		t.Fatalf("Set upsert: %v", err)
	}
	v, ok, err := s.Get(ctx, "theme")
	if err != nil || !ok || v != "light" {
		t.Errorf("Get(theme) = %q ok=%v err=%v, want light", v, ok, err)
	}
}
