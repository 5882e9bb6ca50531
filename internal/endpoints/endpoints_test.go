package endpoints

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTemplates_LiteralSubstitution(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) string
		pre  string
		suf  string
	}{
		{"create-session", CreateSession, "session/start/", ""},
		{"get-session-qr-code", GetSessionQRCode, "session/qr/", "/image"},
		{"check-status", CheckStatus, "session/status/", ""},
		{"get-messages", GetMessages, "chat/fetchMessages/", ""},
		{"send-message", SendMessage, "client/sendMessage/", ""},
	}

	inputs := []string{"abc123", "x", "", "a/b", " padded ", "ünï", "%2F", "?q=1"}
	for _, tc := range cases {
		for _, in := range inputs {
			if got, want := tc.fn(in), tc.pre+in+tc.suf; got != want {
				t.Fatalf("%s(%q) = %q; want %q", tc.name, in, got, want)
			}
		}
	}
}

func TestEdgeExamples(t *testing.T) {
	if got := GetMessages(""); got != "chat/fetchMessages/" {
		t.Fatalf("GetMessages(\"\") = %q", got)
	}
	if got := SendMessage("a/b"); got != "client/sendMessage/a/b" {
		t.Fatalf("SendMessage(\"a/b\") = %q", got)
	}
}

func TestEndToEnd_abc123(t *testing.T) {
	id := "abc123"
	got := []string{
		CreateSession(id),
		GetSessionQRCode(id),
		CheckStatus(id),
		GetMessages(id),
		SendMessage(id),
	}
	want := []string{
		"session/start/abc123",
		"session/qr/abc123/image",
		"session/status/abc123",
		"chat/fetchMessages/abc123",
		"client/sendMessage/abc123",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestDeterministic(t *testing.T) {
	for _, op := range Ops() {
		a, ok1 := Resolve(op, "s-1")
		b, ok2 := Resolve(op, "s-1")
		if !ok1 || !ok2 || a != b {
			t.Fatalf("%s: %q/%v vs %q/%v", op, a, ok1, b, ok2)
		}
	}
}

func TestTemplatesAreDistinct(t *testing.T) {
	seen := map[string]Op{}
	for _, op := range Ops() {
		p, _ := Resolve(op, "{id}")
		if prev, dup := seen[p]; dup {
			t.Fatalf("%s and %s share template %q", prev, op, p)
		}
		seen[p] = op
	}
	if len(seen) != 5 {
		t.Fatalf("distinct templates = %d; want 5", len(seen))
	}
}

func TestResolve_MatchesNamedFunctions(t *testing.T) {
	fns := map[Op]func(string) string{
		OpCreateSession:    CreateSession,
		OpGetSessionQRCode: GetSessionQRCode,
		OpCheckStatus:      CheckStatus,
		OpGetMessages:      GetMessages,
		OpSendMessage:      SendMessage,
	}
	for op, fn := range fns {
		p, ok := Resolve(op, "zz")
		if !ok || p != fn("zz") {
			t.Fatalf("Resolve(%s) = %q, %v; want %q", op, p, ok, fn("zz"))
		}
	}

	if p, ok := Resolve(Op(42), "zz"); ok || p != "" {
		t.Fatalf("unknown op resolved to %q", p)
	}
}

func TestOps_ReturnsCopy(t *testing.T) {
	ops := Ops()
	if len(ops) != 5 {
		t.Fatalf("len(Ops()) = %d", len(ops))
	}
	ops[0] = OpSendMessage
	if Ops()[0] != OpCreateSession {
		t.Fatalf("Ops() exposes internal slice")
	}
}

func TestParseOp_AndString(t *testing.T) {
	for _, op := range Ops() {
		got, ok := ParseOp(op.String())
		if !ok || got != op {
			t.Fatalf("ParseOp(%q) = %v, %v", op.String(), got, ok)
		}
	}
	if got, ok := ParseOp("  Check-Status "); !ok || got != OpCheckStatus {
		t.Fatalf("ParseOp should trim and fold case: %v, %v", got, ok)
	}
	if _, ok := ParseOp("delete-session"); ok {
		t.Fatalf("unknown name parsed")
	}
	if s := Op(0).String(); s != "unknown" {
		t.Fatalf("Op(0).String() = %q", s)
	}
}

func TestAll(t *testing.T) {
	want := map[string]string{
		"create-session":      "session/start/abc123",
		"get-session-qr-code": "session/qr/abc123/image",
		"check-status":        "session/status/abc123",
		"get-messages":        "chat/fetchMessages/abc123",
		"send-message":        "client/sendMessage/abc123",
	}
	if diff := cmp.Diff(want, All("abc123")); diff != "" {
		t.Fatalf("All mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentResolve(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, op := range Ops() {
				if _, ok := Resolve(op, "c"); !ok {
					t.Errorf("resolve %s failed", op)
				}
			}
		}()
	}
	wg.Wait()
}
