package diag

import "testing"

func TestNoteENOMEMFiresAtThreshold(t *testing.T) {
	fired := 0
	tr := &ENOMEMTracker{
		Threshold: 3,
		Capture:   func() []byte { fired++; return []byte("snap") },
	}
	tr.NoteENOMEM()
	tr.NoteENOMEM()
	if fired != 0 {
		t.Fatalf("should not fire before threshold, fired=%d", fired)
	}
	tr.NoteENOMEM()
	if fired != 1 {
		t.Fatalf("expected exactly one fire at threshold, fired=%d", fired)
	}
	// Past-threshold ENOMEMs must not re-fire until a success resets it.
	tr.NoteENOMEM()
	if fired != 1 {
		t.Fatalf("should not re-fire past threshold without an intervening success, fired=%d", fired)
	}
}

func TestNoteSuccessResetsStreak(t *testing.T) {
	fired := 0
	tr := &ENOMEMTracker{
		Threshold: 2,
		Capture:   func() []byte { fired++; return nil },
	}
	tr.NoteENOMEM()
	tr.NoteSuccess()
	if tr.Streak() != 0 {
		t.Fatalf("Streak() = %d, want 0 after success", tr.Streak())
	}
	tr.NoteENOMEM()
	if fired != 0 {
		t.Fatalf("streak should have reset: single ENOMEM after success must not fire at threshold 2")
	}
	tr.NoteENOMEM()
	if fired != 1 {
		t.Fatalf("expected fire after rebuilding the streak to threshold, fired=%d", fired)
	}
}

func TestZeroThresholdDisablesHook(t *testing.T) {
	tr := &ENOMEMTracker{}
	for i := 0; i < 10; i++ {
		tr.NoteENOMEM()
	}
	if len(tr.Snapshots()) != 0 {
		t.Fatal("zero threshold should never capture")
	}
}

func TestSnapshotsAccumulate(t *testing.T) {
	tr := &ENOMEMTracker{
		Threshold: 1,
		Capture:   func() []byte { return []byte("x") },
	}
	tr.NoteENOMEM()
	tr.NoteSuccess()
	tr.NoteENOMEM()
	if len(tr.Snapshots()) != 2 {
		t.Fatalf("expected two captures across two streaks, got %d", len(tr.Snapshots()))
	}
}
