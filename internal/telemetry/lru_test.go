package telemetry

import "testing"

func TestLRUCache_TestAndSet_NewKey(t *testing.T) {
	c := newLRUCache(10)
	prev, ok := c.TestAndSet(1, 100)
	if ok {
		t.Error("first TestAndSet on a fresh key should report not-found")
	}
	if prev != 0 {
		t.Errorf("prev = %d, want 0", prev)
	}
}

func TestLRUCache_TestAndSet_ReturnsPreviousValue(t *testing.T) {
	c := newLRUCache(10)
	c.TestAndSet(1, 100)
	prev, ok := c.TestAndSet(1, 200)
	if !ok {
		t.Fatal("second TestAndSet on the same key should report found")
	}
	if prev != 100 {
		t.Errorf("prev = %d, want 100", prev)
	}
}

func TestLRUCache_EvictsOldestBeyondCapacity(t *testing.T) {
	c := newLRUCache(2)
	c.TestAndSet(1, 1)
	c.TestAndSet(2, 2)
	c.TestAndSet(3, 3) // evicts key 1

	if _, ok := c.TestAndSet(1, 99); ok {
		t.Error("key 1 should have been evicted and report not-found")
	}
	if _, ok := c.TestAndSet(3, 99); !ok {
		t.Error("key 3 should still be present")
	}
}

func TestLRUCache_RecentlyUsedSurvivesEviction(t *testing.T) {
	c := newLRUCache(2)
	c.TestAndSet(1, 1)
	c.TestAndSet(2, 2)
	c.TestAndSet(1, 11) // touches key 1, making key 2 the least recently used
	c.TestAndSet(3, 3)  // should evict key 2, not key 1

	if _, ok := c.TestAndSet(1, 99); !ok {
		t.Error("key 1 was recently touched and should still be present")
	}
	if _, ok := c.TestAndSet(2, 99); ok {
		t.Error("key 2 should have been evicted as the least recently used")
	}
}
