package store

import (
	"path/filepath"
	"testing"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openStore(t)

	session, err := s.CreateSession("test.dlt", "dlt")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ID == "" {
		t.Fatal("session id is empty")
	}

	for i, content := range []string{"first", "second", "third"} {
		if err := s.AddMessage(session.ID, i, content); err != nil {
			t.Fatalf("AddMessage #%d: %v", i, err)
		}
	}
	if err := s.FinishSession(session.ID, 3, 1); err != nil {
		t.Fatalf("FinishSession: %v", err)
	}

	got, err := s.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || got.Input != "test.dlt" || got.Parser != "dlt" {
		t.Fatalf("GetSession = %+v", got)
	}
	if got.Messages != 3 || got.Skipped != 1 {
		t.Errorf("counters = %d/%d, want 3/1", got.Messages, got.Skipped)
	}

	messages, err := s.SessionMessages(session.ID)
	if err != nil {
		t.Fatalf("SessionMessages: %v", err)
	}
	if len(messages) != 3 || messages[0] != "first" || messages[2] != "third" {
		t.Errorf("messages = %v", messages)
	}
}

func TestGetSessionMissing(t *testing.T) {
	s := openStore(t)
	got, err := s.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Errorf("GetSession(nope) = %+v, want nil", got)
	}
}

func TestListSessions(t *testing.T) {
	s := openStore(t)
	for i := 0; i < 3; i++ {
		if _, err := s.CreateSession("in.dlt", "dlt"); err != nil {
			t.Fatalf("CreateSession #%d: %v", i, err)
		}
	}
	sessions, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("ListSessions returned %d sessions, want 3", len(sessions))
	}
}
