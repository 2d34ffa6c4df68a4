package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := uuid.NewV7()
	u := &User{ID: id, Username: "alice", Email: "alice@example.com", PasswordHash: "hash", Role: RoleMember, CreatedAt: 1}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := s.GetUserByUsername(ctx, "ALICE")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.ID != id {
		t.Errorf("id: got %v, want %v", got.ID, id)
	}

	id2, _ := uuid.NewV7()
	dup := &User{ID: id2, Username: "alice", Email: "other@example.com", PasswordHash: "hash", Role: RoleMember, CreatedAt: 2}
	if err := s.CreateUser(ctx, dup); err == nil {
		t.Fatal("expected conflict creating duplicate username")
	}
}

func TestChannelCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := uuid.NewV7()
	c := &Channel{ID: id, Name: "general", ChannelType: ChannelText, CreatedAt: 1}
	if err := s.CreateChannel(ctx, c); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	chans, err := s.GetChannels(ctx)
	if err != nil {
		t.Fatalf("GetChannels: %v", err)
	}
	if len(chans) != 1 {
		t.Fatalf("channels: got %d, want 1", len(chans))
	}

	if err := s.DeleteChannel(ctx, id); err != nil {
		t.Fatalf("DeleteChannel: %v", err)
	}
	if _, err := s.GetChannelByID(ctx, id); err == nil {
		t.Fatal("expected not-found after delete")
	}
}

func TestMessageEnrichment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chanID, _ := uuid.NewV7()
	if err := s.CreateChannel(ctx, &Channel{ID: chanID, Name: "general", ChannelType: ChannelText, CreatedAt: 1}); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	authorID, _ := uuid.NewV7()
	rootID, _ := uuid.NewV7()
	root := &Message{ID: rootID, Content: "hello", AuthorID: authorID, AuthorUsername: "bob", ChannelID: chanID, CreatedAt: 10}
	if err := s.CreateMessage(ctx, root); err != nil {
		t.Fatalf("CreateMessage root: %v", err)
	}

	replyID, _ := uuid.NewV7()
	reply := &Message{ID: replyID, Content: "hi back", AuthorID: authorID, AuthorUsername: "bob", ChannelID: chanID, CreatedAt: 11, ReplyToID: &rootID}
	if err := s.CreateMessage(ctx, reply); err != nil {
		t.Fatalf("CreateMessage reply: %v", err)
	}

	if err := s.AddReaction(ctx, rootID, authorID, "👍", 12); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}

	msgs, err := s.GetMessages(ctx, chanID, 50, nil, authorID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d, want 2", len(msgs))
	}
	if msgs[1].ReplyTo == nil || msgs[1].ReplyTo.Content != "hello" {
		t.Errorf("reply preview not attached correctly: %+v", msgs[1].ReplyTo)
	}
	if len(msgs[0].Reactions) != 1 || !msgs[0].Reactions[0].Reacted {
		t.Errorf("reaction not attached correctly: %+v", msgs[0].Reactions)
	}
}

func TestUseInviteCodeEnforcesMaxUses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ownerID, _ := uuid.NewV7()
	if err := s.CreateUser(ctx, &User{ID: ownerID, Username: "owner", Email: "o@example.com", PasswordHash: "x", Role: RoleOwner, CreatedAt: 1}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	inviteID, _ := uuid.NewV7()
	max := int64(1)
	if err := s.CreateInvite(ctx, &Invite{ID: inviteID, Code: "abc123", CreatedBy: ownerID, MaxUses: &max, CreatedAt: 1}); err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	if _, err := s.UseInviteCode(ctx, "abc123", 100); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if _, err := s.UseInviteCode(ctx, "abc123", 100); err == nil {
		t.Fatal("expected second use to fail once max uses reached")
	}
}

func TestSeedCreatesDefaultChannelsAndPromotesOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	userID, _ := uuid.NewV7()
	if err := s.CreateUser(ctx, &User{ID: userID, Username: "first", Email: "f@example.com", PasswordHash: "x", Role: RoleMember, CreatedAt: 1}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := s.Seed(ctx, 1000); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	chans, err := s.GetChannels(ctx)
	if err != nil {
		t.Fatalf("GetChannels: %v", err)
	}
	if len(chans) != 4 {
		t.Fatalf("channels: got %d, want 4", len(chans))
	}

	role, err := s.GetUserRole(ctx, userID)
	if err != nil {
		t.Fatalf("GetUserRole: %v", err)
	}
	if role != RoleOwner {
		t.Errorf("role: got %s, want owner", role)
	}

	name, err := s.GetSetting(ctx, "server_name")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if name != defaultServerName {
		t.Errorf("server_name: got %q, want %q", name, defaultServerName)
	}
}
