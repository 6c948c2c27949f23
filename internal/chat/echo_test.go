package chat

import "testing"

func TestEchoSet_suppressOwnEchoOnce(t *testing.T) {
	echo := NewEchoSet()
	m := NewMessage("u1", "alice", "hello")

	echo.Record(m)
	if !echo.Suppress(m) {
		t.Fatal("the broadcast echo of our own send must be suppressed")
	}
	// A genuine duplicate (same sender, same millisecond, same text) from the
	// server must render: the fingerprint was evicted on first match.
	if echo.Suppress(m) {
		t.Error("only the first matching broadcast is an echo")
	}
}

func TestEchoSet_otherSendersPass(t *testing.T) {
	echo := NewEchoSet()
	mine := NewMessage("u1", "alice", "hello")
	echo.Record(mine)

	theirs := mine
	theirs.SenderID = "u2"
	if echo.Suppress(theirs) {
		t.Error("another sender's identical text must not be suppressed")
	}
}

func TestEchoSet_systemMessagesBypass(t *testing.T) {
	echo := NewEchoSet()
	sys := SystemMessage("alice joined")

	echo.Record(sys)
	if echo.Len() != 0 {
		t.Error("system messages must not be recorded")
	}
	if echo.Suppress(sys) {
		t.Error("system messages must never be suppressed")
	}
}

func TestEchoSet_pendingLen(t *testing.T) {
	echo := NewEchoSet()
	a := NewMessage("u1", "alice", "one")
	b := NewMessage("u1", "alice", "two")

	echo.Record(a)
	echo.Record(b)
	if echo.Len() != 2 {
		t.Fatalf("Len = %d, want 2", echo.Len())
	}
	echo.Suppress(a)
	if echo.Len() != 1 {
		t.Errorf("Len after one echo = %d, want 1", echo.Len())
	}
}

func TestFingerprint_distinguishesTimestamp(t *testing.T) {
	a := Message{SenderID: "u1", Text: "hi", SentAt: 1000}
	b := Message{SenderID: "u1", Text: "hi", SentAt: 1001}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("messages sent at different times are different sends")
	}
}
