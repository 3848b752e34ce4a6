package roster

// Dedupe collapses records that share a PersonKey, keeping the first occurrence.
// Output order follows first-occurrence order. The second return value is the
// number of rows dropped as duplicates.
func Dedupe(records []RosterRecord) ([]RosterRecord, int) {
	seen := make(map[PersonKey]bool, len(records))
	kept := make([]RosterRecord, 0, len(records))

	for _, r := range records {
		key := r.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, r)
	}

	return kept, len(records) - len(kept)
}
