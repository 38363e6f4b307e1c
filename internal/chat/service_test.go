package chat

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/crewdesk/relay/internal/store"
	"github.com/crewdesk/relay/protocol"
)

func testService(t *testing.T) (*Service, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	for _, u := range []store.User{
		{ID: "alice", Name: "Alice", Role: "member", Active: true},
		{ID: "bob", Name: "Bob", Role: "member", Active: true},
		{ID: "carol", Name: "Carol", Role: "member", Active: true},
	} {
		if err := db.UpsertUser(&u); err != nil {
			t.Fatal(err)
		}
	}
	return NewService(db, DefaultLimits(), zap.NewNop()), db
}

func TestEnsureDirectReturnsExisting(t *testing.T) {
	svc, _ := testService(t)

	conv, created, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first EnsureDirect should create")
	}

	// Same pair in reverse order must return the same conversation.
	again, created, err := svc.EnsureDirect("bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second EnsureDirect should not create")
	}
	if again.ID != conv.ID {
		t.Errorf("got %s, want %s", again.ID, conv.ID)
	}
}

func TestEnsureDirectRejectsSelf(t *testing.T) {
	svc, _ := testService(t)
	if _, _, err := svc.EnsureDirect("alice", "alice"); err == nil {
		t.Error("self pair should be rejected")
	}
}

func TestCreateGroupAutoName(t *testing.T) {
	svc, _ := testService(t)

	conv, err := svc.CreateGroup("", []string{"alice", "bob", "carol"})
	if err != nil {
		t.Fatal(err)
	}
	if conv.Name != "Alice, Bob, Carol" {
		t.Errorf("name = %q, want generated from member names", conv.Name)
	}

	named, err := svc.CreateGroup("launch", []string{"alice", "bob", "carol"})
	if err != nil {
		t.Fatal(err)
	}
	if named.Name != "launch" {
		t.Errorf("name = %q, want launch", named.Name)
	}
}

func TestSendRejectsNonParticipant(t *testing.T) {
	svc, _ := testService(t)
	conv, _, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Send(SendInput{ConversationID: conv.ID, SenderID: "carol", Content: "hi"})
	if !errors.Is(err, ErrNotParticipant) {
		t.Errorf("err = %v, want ErrNotParticipant", err)
	}
}

func TestSendRejectsEmptyContent(t *testing.T) {
	svc, _ := testService(t)
	conv, _, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	for _, content := range []string{"", "   ", "\n\t "} {
		_, err := svc.Send(SendInput{ConversationID: conv.ID, SenderID: "alice", Content: content})
		if !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q) err = %v, want ErrEmptyMessage", content, err)
		}
	}

	// Whitespace content with an attachment is fine.
	msg, err := svc.Send(SendInput{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Content:        "  ",
		Attachments:    []protocol.Attachment{{StoredName: "a.png", MimeType: "image/png", Size: 5}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "" {
		t.Errorf("content = %q, want trimmed empty", msg.Content)
	}
}

func TestSendEnforcesLimits(t *testing.T) {
	svc, _ := testService(t)
	conv, _, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Send(SendInput{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Content:        strings.Repeat("x", 4001),
	})
	if !errors.Is(err, ErrTooLong) {
		t.Errorf("err = %v, want ErrTooLong", err)
	}

	_, err = svc.Send(SendInput{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Content:        "file",
		Attachments:    []protocol.Attachment{{StoredName: "big.bin", MimeType: "application/zip", Size: 51 << 20}},
	})
	if !errors.Is(err, ErrAttachmentSize) {
		t.Errorf("err = %v, want ErrAttachmentSize", err)
	}
}

func TestSendDerivesKindFromMime(t *testing.T) {
	svc, _ := testService(t)
	conv, _, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		mime string
		want string
	}{
		{"image/jpeg", "image"},
		{"video/mp4", "video"},
		{"audio/ogg", "audio"},
		{"application/pdf", "document"},
	}
	for _, tt := range tests {
		msg, err := svc.Send(SendInput{
			ConversationID: conv.ID,
			SenderID:       "alice",
			Content:        "here",
			Attachments:    []protocol.Attachment{{StoredName: "f", MimeType: tt.mime, Size: 1}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if msg.Kind != tt.want {
			t.Errorf("kind for %s = %q, want %q", tt.mime, msg.Kind, tt.want)
		}
	}

	// Without attachments the kind is text.
	msg, err := svc.Send(SendInput{ConversationID: conv.ID, SenderID: "alice", Content: "plain"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind != "text" {
		t.Errorf("kind = %q, want text", msg.Kind)
	}
}

func TestSendCommitsAsSentAndTouches(t *testing.T) {
	svc, db := testService(t)
	conv, _, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	msg, err := svc.Send(SendInput{ConversationID: conv.ID, SenderID: "alice", Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != store.StatusSent {
		t.Errorf("status = %q, want sent", msg.Status)
	}

	got, err := db.GetConversation(conv.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessageID != msg.ID {
		t.Errorf("lastMessageId = %q, want %q", got.LastMessageID, msg.ID)
	}
}

func TestMessageIDsSortByCreation(t *testing.T) {
	svc, _ := testService(t)
	conv, _, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	var prev string
	for i := 0; i < 5; i++ {
		msg, err := svc.Send(SendInput{ConversationID: conv.ID, SenderID: "alice", Content: "m"})
		if err != nil {
			t.Fatal(err)
		}
		if prev != "" && msg.ID <= prev {
			t.Fatalf("id %q not after %q", msg.ID, prev)
		}
		prev = msg.ID
	}
}

func TestMessageIDsUniqueAcrossGoroutines(t *testing.T) {
	svc, _ := testService(t)

	const workers, perWorker = 8, 200
	ids := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ids <- svc.newMessageID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, workers*perWorker)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate message id %s", id)
		}
		seen[id] = true
	}
}

func TestMarkReadIsIdempotentAndAdvances(t *testing.T) {
	svc, _ := testService(t)
	conv, _, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := svc.Send(SendInput{ConversationID: conv.ID, SenderID: "alice", Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}

	read, inserted, err := svc.MarkRead(msg.ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Error("first MarkRead should insert")
	}
	if read.Status != store.StatusRead {
		t.Errorf("status = %q, want read", read.Status)
	}
	firstAt := read.ReadBy["bob"]

	read, inserted, err = svc.MarkRead(msg.ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("second MarkRead should be a no-op")
	}
	if read.ReadBy["bob"] != firstAt {
		t.Errorf("timestamp moved from %d to %d", firstAt, read.ReadBy["bob"])
	}
	if read.Status != store.StatusRead {
		t.Errorf("status regressed to %q", read.Status)
	}
}

func TestMarkReadRequiresParticipation(t *testing.T) {
	svc, _ := testService(t)
	conv, _, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := svc.Send(SendInput{ConversationID: conv.ID, SenderID: "alice", Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.MarkRead(msg.ID, "carol"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("err = %v, want ErrNotParticipant", err)
	}
	if _, _, err := svc.MarkRead("missing", "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReactAddRemove(t *testing.T) {
	svc, _ := testService(t)
	conv, _, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := svc.Send(SendInput{ConversationID: conv.ID, SenderID: "alice", Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}

	reactions, err := svc.React(msg.ID, "bob", "🔥", "add")
	if err != nil {
		t.Fatal(err)
	}
	if len(reactions["🔥"]) != 1 {
		t.Errorf("reactions = %v", reactions)
	}

	// Double add stays a single entry.
	reactions, err = svc.React(msg.ID, "bob", "🔥", "add")
	if err != nil {
		t.Fatal(err)
	}
	if len(reactions["🔥"]) != 1 {
		t.Errorf("after double add: %v", reactions)
	}

	reactions, err = svc.React(msg.ID, "bob", "🔥", "remove")
	if err != nil {
		t.Fatal(err)
	}
	if len(reactions["🔥"]) != 0 {
		t.Errorf("after remove: %v", reactions)
	}

	if _, err := svc.React(msg.ID, "carol", "🔥", "add"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("err = %v, want ErrNotParticipant", err)
	}
}

func TestDeleteIsSenderOnly(t *testing.T) {
	svc, _ := testService(t)
	conv, _, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := svc.Send(SendInput{ConversationID: conv.ID, SenderID: "alice", Content: "oops"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Delete(msg.ID, "bob"); !errors.Is(err, ErrNotSender) {
		t.Errorf("err = %v, want ErrNotSender", err)
	}

	deleted, err := svc.Delete(msg.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !deleted.Deleted {
		t.Error("message should be marked deleted")
	}

	// Deleted messages disappear from history.
	msgs, err := svc.History(conv.ID, "alice", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("history has %d messages, want 0", len(msgs))
	}
}

func TestHistoryRequiresParticipation(t *testing.T) {
	svc, _ := testService(t)
	conv, _, err := svc.EnsureDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.History(conv.ID, "carol", "", 10); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("err = %v, want ErrNotParticipant", err)
	}
}
