package ws

import (
	"testing"
	"time"
)

func TestCooldownOnePerWindow(t *testing.T) {
	c := newCooldown(30 * time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	if !c.Reserve("conn-1") {
		t.Fatal("first reservation should win the slot")
	}
	if c.Reserve("conn-1") {
		t.Error("second reservation in the same window should be refused")
	}

	// Another connection has its own slot.
	if !c.Reserve("conn-2") {
		t.Error("independent connection should get its own slot")
	}

	// Window elapses, the slot frees up.
	c.now = func() time.Time { return base.Add(31 * time.Second) }
	if !c.Reserve("conn-1") {
		t.Error("reservation after the window should succeed")
	}
}

func TestCooldownForget(t *testing.T) {
	c := newCooldown(time.Minute)
	if !c.Reserve("conn-1") {
		t.Fatal("first reservation should win the slot")
	}
	c.Forget("conn-1")
	if !c.Reserve("conn-1") {
		t.Error("reservation after Forget should succeed")
	}
}

func TestCooldownDisabled(t *testing.T) {
	c := newCooldown(0)
	for i := 0; i < 3; i++ {
		if !c.Reserve("conn-1") {
			t.Fatal("zero window should never refuse")
		}
	}
}
