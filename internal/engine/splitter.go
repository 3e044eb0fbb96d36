package engine

// TreatmentForBucket returns the treatment assigned to bucket b (1..100)
// by a condition's partition list: the smallest-index partition whose
// cumulative weight covers b. Partition order is the order the flag
// definition stores them in.
//
// Returns Control if partitions is empty or their cumulative weight never
// reaches b, which should never happen for a well-formed flag but is
// handled defensively rather than panicking.
func TreatmentForBucket(bucket int, partitions []Partition) string {
	if len(partitions) == 1 && partitions[0].Size == 100 {
		return partitions[0].Treatment
	}

	covered := 0
	for _, p := range partitions {
		covered += p.Size
		if covered >= bucket {
			return p.Treatment
		}
	}
	return Control
}

// Split computes the bucket for bucketingKey under the flag's hashing
// algorithm and seed, then resolves it against the winning condition's
// partitions.
func Split(algo HashAlgorithm, bucketingKey string, seed int64, partitions []Partition) string {
	if len(partitions) == 0 {
		return Control
	}
	bucket := Bucket(algo, bucketingKey, seed)
	return TreatmentForBucket(bucket, partitions)
}
