package model

import "testing"

func TestNormalizedTitleNFC(t *testing.T) {
	// "café" with a combining acute accent (NFD) vs. precomposed (NFC).
	nfd := "café"
	nfc := "café"

	a := Item{Props: map[string]any{"title": nfd}}
	b := Item{Props: map[string]any{"title": nfc}}

	if a.NormalizedTitle() != b.NormalizedTitle() {
		t.Fatalf("expected NFD and NFC forms to normalize equal, got %q vs %q", a.NormalizedTitle(), b.NormalizedTitle())
	}
}

func TestEffectiveUserTimestampsDefault(t *testing.T) {
	it := Item{UpdatedTime: 100, CreatedTime: 50}

	if got := it.EffectiveUserUpdatedTime(); got != 100 {
		t.Errorf("EffectiveUserUpdatedTime() = %d, want 100", got)
	}

	if got := it.EffectiveUserCreatedTime(); got != 50 {
		t.Errorf("EffectiveUserCreatedTime() = %d, want 50", got)
	}

	it.UserUpdatedTime = 200
	if got := it.EffectiveUserUpdatedTime(); got != 200 {
		t.Errorf("EffectiveUserUpdatedTime() = %d, want 200 once set", got)
	}
}

func TestSyncItemNeverSynced(t *testing.T) {
	si := SyncItem{}
	if !si.NeverSynced() {
		t.Error("zero-value SyncItem should report NeverSynced")
	}

	si.SyncTime = 1
	if si.NeverSynced() {
		t.Error("SyncItem with sync_time > 0 should not report NeverSynced")
	}
}

func TestStripForPersistenceDropsCaches(t *testing.T) {
	sc := SyncContext{TargetID: 1, Cursor: "abc", Caches: map[string]any{"scratch": 1}}

	stripped := sc.StripForPersistence()

	if stripped.Caches != nil {
		t.Error("StripForPersistence should drop Caches")
	}

	if stripped.TargetID != sc.TargetID || stripped.Cursor != sc.Cursor {
		t.Error("StripForPersistence should preserve TargetID and Cursor")
	}
}
