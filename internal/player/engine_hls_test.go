package player

import "testing"

func TestParsePlaylist(t *testing.T) {
	pl, err := parsePlaylist("#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4.0,\nseg0.ts\n#EXTINF:4.0,\nseg1.ts\n")
	if err != nil {
		t.Fatalf("parsePlaylist: %v", err)
	}
	if pl.targetDuration != 4 {
		t.Errorf("targetDuration = %d, want 4", pl.targetDuration)
	}
	if len(pl.segments) != 2 || pl.segments[0] != "seg0.ts" || pl.segments[1] != "seg1.ts" {
		t.Errorf("segments = %v", pl.segments)
	}
	if pl.ended {
		t.Error("live playlist must not be marked ended")
	}
}

func TestParsePlaylist_endlist(t *testing.T) {
	pl, err := parsePlaylist("#EXTM3U\nseg0.ts\n#EXT-X-ENDLIST\n")
	if err != nil {
		t.Fatalf("parsePlaylist: %v", err)
	}
	if !pl.ended {
		t.Error("expected endlist flag")
	}
}

func TestParsePlaylist_rejectsNonPlaylist(t *testing.T) {
	if _, err := parsePlaylist("<html>nope</html>"); err == nil {
		t.Error("expected an error for a body without the playlist marker")
	}
}

func TestResolveSegmentURL(t *testing.T) {
	got, err := resolveSegmentURL("https://media.example.com/live/k/index.m3u8", "seg3.ts")
	if err != nil {
		t.Fatalf("resolveSegmentURL: %v", err)
	}
	if got != "https://media.example.com/live/k/seg3.ts" {
		t.Errorf("resolved = %q", got)
	}

	got, err = resolveSegmentURL("https://media.example.com/live/k/index.m3u8", "https://cdn.example.com/abs.ts")
	if err != nil {
		t.Fatalf("resolveSegmentURL: %v", err)
	}
	if got != "https://cdn.example.com/abs.ts" {
		t.Errorf("absolute segment URI must win, got %q", got)
	}
}
