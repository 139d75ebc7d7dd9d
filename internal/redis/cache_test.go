package redis

import (
	"encoding/json"
	"testing"
)

func TestCachedDriver_JSONOmitsMissingPosition(t *testing.T) {
	data, err := json.Marshal(CachedDriver{ID: "d1", Online: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := fields["lat"]; ok {
		t.Error("expected lat to be omitted when unset")
	}
	if fields["online"] != true {
		t.Errorf("expected online=true, got %v", fields["online"])
	}
}

func TestDispatchLockKey(t *testing.T) {
	if got := dispatchLockKey("abc"); got != "lock:dispatch:abc" {
		t.Errorf("unexpected key %q", got)
	}
}
