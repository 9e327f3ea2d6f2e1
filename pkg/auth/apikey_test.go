package auth

import "testing"

func TestNewCallerKeys(t *testing.T) {
	ck := NewCallerKeys("agent-runtime:tk-abc,batch-jobs:tk-def")

	tests := []struct {
		key    string
		caller string
		ok     bool
	}{
		{"tk-abc", "agent-runtime", true},
		{"tk-def", "batch-jobs", true},
		{"tk-unknown", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		caller, ok := ck.Lookup(tt.key)
		if ok != tt.ok {
			t.Errorf("Lookup(%q) ok=%v, want %v", tt.key, ok, tt.ok)
		}
		if caller != tt.caller {
			t.Errorf("Lookup(%q) caller=%q, want %q", tt.key, caller, tt.caller)
		}
	}
}

func TestNewCallerKeys_Empty(t *testing.T) {
	ck := NewCallerKeys("")
	if ck.Len() != 0 {
		t.Errorf("expected empty store, got %d keys", ck.Len())
	}
	if _, ok := ck.Lookup("anything"); ok {
		t.Error("empty store should not match")
	}
}

func TestNewCallerKeys_Whitespace(t *testing.T) {
	ck := NewCallerKeys(" agent-runtime : tk-abc , batch-jobs : tk-def ")
	if caller, ok := ck.Lookup("tk-abc"); !ok || caller != "agent-runtime" {
		t.Error("should handle whitespace in key pairs")
	}
}

func TestNewCallerKeys_SkipsMalformedPairs(t *testing.T) {
	ck := NewCallerKeys("no-colon,:empty-caller,empty-key:,good:tk-1")
	if ck.Len() != 1 {
		t.Errorf("expected 1 key, got %d", ck.Len())
	}
	if caller, ok := ck.Lookup("tk-1"); !ok || caller != "good" {
		t.Error("well-formed pair should survive malformed neighbors")
	}
}
