package engine

import "testing"

func TestTreatmentForBucket_SinglePartition(t *testing.T) {
	partitions := []Partition{{Treatment: "on", Size: 100}}
	if got := TreatmentForBucket(37, partitions); got != "on" {
		t.Errorf("TreatmentForBucket(37) = %q, want on", got)
	}
}

func TestTreatmentForBucket_CumulativeWeights(t *testing.T) {
	partitions := []Partition{
		{Treatment: "off", Size: 50},
		{Treatment: "on", Size: 50},
	}
	if got := TreatmentForBucket(25, partitions); got != "off" {
		t.Errorf("TreatmentForBucket(25) = %q, want off", got)
	}
	if got := TreatmentForBucket(75, partitions); got != "on" {
		t.Errorf("TreatmentForBucket(75) = %q, want on", got)
	}
	if got := TreatmentForBucket(50, partitions); got != "off" {
		t.Errorf("TreatmentForBucket(50) = %q, want off (boundary belongs to the covering partition)", got)
	}
}

func TestTreatmentForBucket_EmptyPartitions(t *testing.T) {
	if got := TreatmentForBucket(1, nil); got != Control {
		t.Errorf("TreatmentForBucket(nil) = %q, want %q", got, Control)
	}
}

func TestTreatmentForBucket_UnderCoveredPartitions(t *testing.T) {
	partitions := []Partition{{Treatment: "on", Size: 10}}
	if got := TreatmentForBucket(50, partitions); got != Control {
		t.Errorf("TreatmentForBucket(50) with only 10%% coverage = %q, want %q", got, Control)
	}
}

func TestSplit_EmptyPartitionsReturnsControl(t *testing.T) {
	if got := Split(HashMurmur3, "user-1", 0, nil); got != Control {
		t.Errorf("Split() with no partitions = %q, want %q", got, Control)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	partitions := []Partition{{Treatment: "on", Size: 100}}
	a := Split(HashMurmur3, "user-1", 12345, partitions)
	b := Split(HashMurmur3, "user-1", 12345, partitions)
	if a != b {
		t.Errorf("Split() not deterministic: %q != %q", a, b)
	}
}

func TestSplit_DistributionRoughlyMatchesWeights(t *testing.T) {
	partitions := []Partition{
		{Treatment: "off", Size: 50},
		{Treatment: "on", Size: 50},
	}
	counts := map[string]int{}
	const n = 5000
	for i := 0; i < n; i++ {
		key := string(rune(i%26+'a')) + string(rune((i/26)%26+'a')) + string(rune((i/676)%26+'a'))
		treatment := Split(HashMurmur3, key, 1, partitions)
		counts[treatment]++
	}
	for _, treatment := range []string{"off", "on"} {
		frac := float64(counts[treatment]) / float64(n)
		if frac < 0.4 || frac > 0.6 {
			t.Errorf("treatment %q got fraction %.3f, want roughly 0.5 (50/50 split)", treatment, frac)
		}
	}
}
