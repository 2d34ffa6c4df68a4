package linkpreview

import (
	"testing"

	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

func TestNewWorkerConfiguresOutboundLimiter(t *testing.T) {
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()
	w := NewWorker(st, state.New(), "secret")
	if w.limiter == nil {
		t.Fatal("expected a non-nil outbound rate limiter")
	}
	if b := w.limiter.Burst(); b != outboundBurst {
		t.Errorf("burst: got %d, want %d", b, outboundBurst)
	}
}

func TestExtractURLsCapsAtFive(t *testing.T) {
	content := "a http://1.example.com b http://2.example.com c http://3.example.com " +
		"d http://4.example.com e http://5.example.com f http://6.example.com"
	urls := extractURLs(content)
	if len(urls) != 5 {
		t.Fatalf("got %d urls, want 5", len(urls))
	}
}

func TestExtractURLsDedupes(t *testing.T) {
	content := "see http://example.com and again http://example.com"
	urls := extractURLs(content)
	if len(urls) != 1 {
		t.Fatalf("got %d urls, want 1", len(urls))
	}
}

func TestGuardHostRejectsPrivateAddress(t *testing.T) {
	if err := guardHost("127.0.0.1"); err == nil {
		t.Fatal("expected loopback to be rejected")
	}
	if err := guardHost("10.0.0.5"); err == nil {
		t.Fatal("expected private address to be rejected")
	}
	if err := guardHost("169.254.169.254"); err == nil {
		t.Fatal("expected cloud metadata address to be rejected")
	}
	if err := guardHost("100.64.0.1"); err == nil {
		t.Fatal("expected CGNAT address to be rejected")
	}
}

func TestTruncateDesc(t *testing.T) {
	short := "hello"
	if got := truncateDesc(short); got != short {
		t.Errorf("short: got %q", got)
	}
	long := make([]rune, descMaxChars+10)
	for i := range long {
		long[i] = 'a'
	}
	got := truncateDesc(string(long))
	if len([]rune(got)) != descMaxChars+len("...") {
		t.Errorf("long: got length %d", len([]rune(got)))
	}
}
