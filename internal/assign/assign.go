// Package assign distributes candidate ownership across cooperating
// sampling spokes so partitioned runs do not evaluate a candidate twice.
package assign

// Table splits order across workers round-robin, preserving relative order
// within each bucket. Every candidate lands in exactly one bucket and bucket
// sizes differ by at most one. workers below 1 yields a single bucket.
func Table(order []string, workers int) [][]string {
	if workers < 1 {
		workers = 1
	}
	buckets := make([][]string, workers)
	for i, name := range order {
		w := i % workers
		buckets[w] = append(buckets[w], name)
	}
	return buckets
}

// Slice returns the bucket owned by worker index out of workers. An index
// outside [0, workers) returns nil.
func Slice(order []string, workers, index int) []string {
	if index < 0 || index >= workers {
		return nil
	}
	return Table(order, workers)[index]
}
