package vision

// Deduplicate collapses clusters of overlapping detections into one
// representative per cluster, preserving input order among survivors. A match
// is considered a duplicate of an earlier one when its top-left corner falls
// inside the earlier match's rectangle; area overlap alone does not suppress.
//
// This containment rule is a deliberate approximation kept for compatibility
// with the original locator: it can miss near-duplicates whose corner sits
// just outside the reference rectangle, and it can merge two adjacent but
// distinct elements whose corners nest.
func Deduplicate(matches []Match) []Match {
	if len(matches) < 2 {
		return matches
	}
	out := append([]Match(nil), matches...)
	for i := 0; i < len(out); i++ {
		cur := out[i]
		kept := out[:i+1]
		for _, m := range out[i+1:] {
			if m.Left >= cur.Left && m.Left < cur.Left+cur.Width &&
				m.Top >= cur.Top && m.Top < cur.Top+cur.Height {
				continue
			}
			kept = append(kept, m)
		}
		out = kept
	}
	return out
}
