package performance

import "testing"

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"lite":     Lite,
		"LITE":     Lite,
		"medium":   Medium,
		"":         Medium,
		"Advanced": Advanced,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil {
			t.Errorf("ParseMode(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseMode(%q): expected %s, got %s", in, want, got)
		}
	}

	if _, err := ParseMode("turbo"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestProfilesScaleWithMode(t *testing.T) {
	lite, medium, advanced := ProfileFor(Lite), ProfileFor(Medium), ProfileFor(Advanced)

	if !(lite.MaxCandidates < medium.MaxCandidates && medium.MaxCandidates < advanced.MaxCandidates) {
		t.Error("Candidate budget should grow with the mode")
	}
	if !(lite.Scales <= medium.Scales && medium.Scales <= advanced.Scales) {
		t.Error("Scale count should not shrink with the mode")
	}
	for _, p := range []Profile{lite, medium, advanced} {
		if p.PatchSize%2 == 0 {
			t.Errorf("%s: patch size %d must be odd", p.Mode, p.PatchSize)
		}
	}

	if got := ProfileFor(Mode(42)); got.Mode != Medium {
		t.Errorf("Unknown mode should fall back to medium, got %s", got.Mode)
	}
}

func TestManagerSnapshotIsFixed(t *testing.T) {
	m := NewManager(Lite)
	snap := m.Snapshot()

	m.Set(Advanced)
	if snap.Mode != Lite {
		t.Error("A taken snapshot must not change when the mode changes")
	}
	if m.Snapshot().Mode != Advanced {
		t.Error("New snapshots should reflect the new mode")
	}

	m.Set(Mode(-1))
	if m.Mode() != Medium {
		t.Errorf("Invalid mode should reset to medium, got %s", m.Mode())
	}
}
