package media

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/iohzrd/echora/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	disk, err := NewLocalDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalDisk: %v", err)
	}
	return New(disk, st), st
}

func createUser(t *testing.T, st *store.Store) uuid.UUID {
	t.Helper()
	id, _ := uuid.NewV7()
	if err := st.CreateUser(context.Background(), &store.User{
		ID: id, Username: id.String()[:8], Email: id.String()[:8] + "@example.com",
		PasswordHash: "x", Role: store.RoleMember, CreatedAt: 1,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func TestUploadAttachmentRejectsDisallowedContentType(t *testing.T) {
	svc, st := newTestService(t)
	uploader := createUser(t, st)

	_, err := svc.UploadAttachment(context.Background(), uploader, "payload.exe", "application/x-msdownload", 4, bytes.NewReader([]byte("data")))
	if err == nil {
		t.Fatal("expected error for disallowed content type")
	}
}

func TestUploadAttachmentRoundTrips(t *testing.T) {
	svc, st := newTestService(t)
	uploader := createUser(t, st)

	body := []byte("some image bytes")
	a, err := svc.UploadAttachment(context.Background(), uploader, "photo.png", "image/png", int64(len(body)), bytes.NewReader(body))
	if err != nil {
		t.Fatalf("UploadAttachment: %v", err)
	}

	_, rc, err := svc.OpenAttachment(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("OpenAttachment: %v", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		t.Fatalf("read: %v", err)
	}
	if buf.String() != string(body) {
		t.Errorf("roundtrip mismatch: got %q", buf.String())
	}
}

func TestUploadAvatarReplacesPrevious(t *testing.T) {
	svc, st := newTestService(t)
	uploader := createUser(t, st)

	first, err := svc.UploadAvatar(context.Background(), uploader, "image/png", 5, strings.NewReader("first"))
	if err != nil {
		t.Fatalf("UploadAvatar (first): %v", err)
	}
	second, err := svc.UploadAvatar(context.Background(), uploader, "image/png", 6, strings.NewReader("second"))
	if err != nil {
		t.Fatalf("UploadAvatar (second): %v", err)
	}
	if first == second {
		t.Fatal("expected a new disk name on re-upload")
	}

	rc, err := svc.OpenAvatar(context.Background(), uploader)
	if err != nil {
		t.Fatalf("OpenAvatar: %v", err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	buf.ReadFrom(rc)
	if buf.String() != "second" {
		t.Errorf("expected current avatar bytes, got %q", buf.String())
	}
}

func TestCreateCustomEmojiEnforcesSizeCap(t *testing.T) {
	svc, st := newTestService(t)
	uploader := createUser(t, st)

	oversized := bytes.Repeat([]byte{0}, 300*1024)
	_, err := svc.CreateCustomEmoji(context.Background(), uploader, "party", "image/png", int64(len(oversized)), bytes.NewReader(oversized))
	if err == nil {
		t.Fatal("expected error for oversized emoji")
	}
}
