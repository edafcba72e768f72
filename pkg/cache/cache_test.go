package cache

import "testing"

func TestGenerateKey(t *testing.T) {
	if got := GenerateKey("snapshot", "latest"); got != "snapshot:latest" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := GenerateKey("snapshot"); got != "snapshot" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestWrapKey(t *testing.T) {
	c := NewRedisCacheFromClient(nil, "nkdash")
	keys := c.wrapKeys("a", "b")
	if keys[0] != "nkdash:a" || keys[1] != "nkdash:b" {
		t.Fatalf("unexpected keys %v", keys)
	}
}
