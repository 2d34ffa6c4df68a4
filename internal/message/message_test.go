package message

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/iohzrd/echora/internal/store"
)

type noopPreviewer struct{ calls int }

func (p *noopPreviewer) FetchAsync(uuid.UUID, uuid.UUID, string) { p.calls++ }

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store, *noopPreviewer) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	prev := &noopPreviewer{}
	return New(st, prev), st, prev
}

func TestCreateMessageRejectsEmptyContentWithoutAttachments(t *testing.T) {
	p, st, _ := newTestPipeline(t)
	ctx := context.Background()
	chanID, _ := uuid.NewV7()
	if err := st.CreateChannel(ctx, &store.Channel{ID: chanID, Name: "general", ChannelType: store.ChannelText, CreatedAt: 1}); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	userID, _ := uuid.NewV7()

	_, err := p.CreateMessage(ctx, CreateParams{UserID: userID, Username: "bob", ChannelID: chanID})
	if err == nil {
		t.Fatal("expected error for empty content with no attachments")
	}
}

func TestCreateMessageSpawnsPreviewFetchOnNonEmptyContent(t *testing.T) {
	p, st, prev := newTestPipeline(t)
	ctx := context.Background()
	chanID, _ := uuid.NewV7()
	if err := st.CreateChannel(ctx, &store.Channel{ID: chanID, Name: "general", ChannelType: store.ChannelText, CreatedAt: 1}); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	userID, _ := uuid.NewV7()

	res, err := p.CreateMessage(ctx, CreateParams{UserID: userID, Username: "bob", ChannelID: chanID, Content: "hello world"})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if res.Message.Content != "hello world" {
		t.Errorf("content: got %q", res.Message.Content)
	}
	if prev.calls != 1 {
		t.Errorf("preview fetch calls: got %d, want 1", prev.calls)
	}
}

func TestCreateMessageStripsEmbeddedHTML(t *testing.T) {
	p, st, _ := newTestPipeline(t)
	ctx := context.Background()
	chanID, _ := uuid.NewV7()
	if err := st.CreateChannel(ctx, &store.Channel{ID: chanID, Name: "general", ChannelType: store.ChannelText, CreatedAt: 1}); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	userID, _ := uuid.NewV7()

	res, err := p.CreateMessage(ctx, CreateParams{
		UserID: userID, Username: "bob", ChannelID: chanID,
		Content: `hi <script>alert(1)</script> there`,
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if strings.Contains(res.Message.Content, "<script>") {
		t.Errorf("expected script tag to be stripped, got %q", res.Message.Content)
	}
}

func TestCreateMessageValidatesReplyChannelWhenRequested(t *testing.T) {
	p, st, _ := newTestPipeline(t)
	ctx := context.Background()
	chanA, _ := uuid.NewV7()
	chanB, _ := uuid.NewV7()
	if err := st.CreateChannel(ctx, &store.Channel{ID: chanA, Name: "a", ChannelType: store.ChannelText, CreatedAt: 1}); err != nil {
		t.Fatalf("CreateChannel a: %v", err)
	}
	if err := st.CreateChannel(ctx, &store.Channel{ID: chanB, Name: "b", ChannelType: store.ChannelText, CreatedAt: 1}); err != nil {
		t.Fatalf("CreateChannel b: %v", err)
	}
	userID, _ := uuid.NewV7()

	root, err := p.CreateMessage(ctx, CreateParams{UserID: userID, Username: "bob", ChannelID: chanA, Content: "root"})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}

	_, err = p.CreateMessage(ctx, CreateParams{
		UserID: userID, Username: "bob", ChannelID: chanB, Content: "reply",
		ReplyToID: &root.Message.ID, ValidateReplyChannel: true,
	})
	if err == nil {
		t.Fatal("expected error replying across channels when validation is enabled")
	}

	_, err = p.CreateMessage(ctx, CreateParams{
		UserID: userID, Username: "bob", ChannelID: chanB, Content: "reply",
		ReplyToID: &root.Message.ID, ValidateReplyChannel: false,
	})
	if err != nil {
		t.Fatalf("expected cross-channel reply to be tolerated when validation disabled: %v", err)
	}
}
