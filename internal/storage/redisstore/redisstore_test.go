package redisstore

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/splitkit/splitkit-go/internal/storage"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.RetryAttempts)
	}
	if cfg.RetryInterval != time.Second {
		t.Errorf("RetryInterval = %v, want 1s", cfg.RetryInterval)
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v, want 5s", cfg.ConnectTimeout)
	}
	if cfg.Prefix != "SPLITIO" {
		t.Errorf("Prefix = %q, want SPLITIO", cfg.Prefix)
	}
}

func TestConfig_WithDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{RetryAttempts: 10, RetryInterval: 2 * time.Second, Prefix: "custom"}.withDefaults()
	if cfg.RetryAttempts != 10 || cfg.RetryInterval != 2*time.Second || cfg.Prefix != "custom" {
		t.Errorf("withDefaults() overrode explicit values: %+v", cfg)
	}
}

func TestNew_DefaultsEmptyPrefix(t *testing.T) {
	s := New(&redis.Client{}, "")
	if s.prefix != "SPLITIO" {
		t.Errorf("New() with empty prefix = %q, want SPLITIO", s.prefix)
	}
}

func TestNew_KeepsExplicitPrefix(t *testing.T) {
	s := New(&redis.Client{}, "myapp")
	if s.prefix != "myapp" {
		t.Errorf("New() prefix = %q, want myapp", s.prefix)
	}
}

func TestStore_KeySchema(t *testing.T) {
	s := New(&redis.Client{}, "SPLITIO")
	if got := s.flagKey("my_flag"); got != "SPLITIO.split.my_flag" {
		t.Errorf("flagKey() = %q, want SPLITIO.split.my_flag", got)
	}
	if got := s.segmentKey("beta"); got != "SPLITIO.segment.beta" {
		t.Errorf("segmentKey() = %q, want SPLITIO.segment.beta", got)
	}
	if got := s.tillKey(); got != "SPLITIO.splits.till" {
		t.Errorf("tillKey() = %q, want SPLITIO.splits.till", got)
	}
}

func TestStore_ApplyFlagsAndApplySegmentAreNoOps(t *testing.T) {
	s := New(&redis.Client{}, "SPLITIO")
	if err := s.ApplyFlags(storage.FlagUpdate{}); err != nil {
		t.Errorf("ApplyFlags() error = %v, want nil (consumer mode no-op)", err)
	}
	if err := s.ApplySegment(storage.SegmentUpdate{}); err != nil {
		t.Errorf("ApplySegment() error = %v, want nil (consumer mode no-op)", err)
	}
}

func TestStore_UnsupportedReadsReturnZeroValues(t *testing.T) {
	s := New(&redis.Client{}, "SPLITIO")
	if _, ok := s.SegmentChangeNumber("beta"); ok {
		t.Error("SegmentChangeNumber() should report not-found in consumer mode")
	}
	if names := s.FlagNames(); names != nil {
		t.Errorf("FlagNames() = %v, want nil", names)
	}
	if names := s.FlagsInSet("set"); names != nil {
		t.Errorf("FlagsInSet() = %v, want nil", names)
	}
	if sets := s.AllSets(); sets != nil {
		t.Errorf("AllSets() = %v, want nil", sets)
	}
	if segs := s.SegmentsReferencedBy("flag"); segs != nil {
		t.Errorf("SegmentsReferencedBy() = %v, want nil", segs)
	}
}
