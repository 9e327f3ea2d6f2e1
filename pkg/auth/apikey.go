package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// CallerKeys maps hashed API keys to caller names. Thread-safe. Keys are
// stored as SHA-256 hashes to protect against memory dumps.
type CallerKeys struct {
	mu   sync.RWMutex
	keys map[string]string // SHA-256(apiKey) → caller
}

// NewCallerKeys creates a CallerKeys from a comma-separated "caller:key"
// string. Example: "agent-runtime:tk-abc,batch-jobs:tk-def"
func NewCallerKeys(raw string) *CallerKeys {
	ck := &CallerKeys{keys: make(map[string]string)}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		caller := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if caller == "" || key == "" {
			continue
		}
		ck.keys[hashKey(key)] = caller
	}
	return ck
}

// Lookup returns the caller name for a given API key.
func (ck *CallerKeys) Lookup(apiKey string) (caller string, ok bool) {
	ck.mu.RLock()
	defer ck.mu.RUnlock()
	caller, ok = ck.keys[hashKey(apiKey)]
	return
}

// Len reports how many keys are configured.
func (ck *CallerKeys) Len() int {
	ck.mu.RLock()
	defer ck.mu.RUnlock()
	return len(ck.keys)
}

func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
