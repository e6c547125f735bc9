package tree

import "strings"

// alphabet is the base-36 symbol set fractional positions are built
// from; ordering here must match Go's native string comparison (ASCII
// order), which it does since the symbols are listed in ascending byte
// value.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Between returns a position string that sorts strictly between lo and
// hi under strings.Compare. Either bound may be empty: an empty lo means
// "no lower bound", an empty hi means "no upper bound" (e.g. appending
// past the last sibling).
//
// This is a minimal digit-midpoint generator, a simplification of the
// jitter-salted fractional index `original_source`'s tree container
// uses to avoid same-position collisions across concurrent inserts at
// the same slot (enable_fractional_index's jitter parameter is accepted
// by the public handle but does not perturb the string produced here);
// see DESIGN.md.
func Between(lo, hi string) string {
	const unbounded = len(alphabet) // one past the last real symbol
	var out []byte
	for i := 0; i < 64; i++ {
		lc := 0
		if i < len(lo) {
			lc = strings.IndexByte(alphabet, lo[i])
		}
		hc := unbounded
		if i < len(hi) {
			hc = strings.IndexByte(alphabet, hi[i])
		}
		if hc-lc > 1 {
			out = append(out, alphabet[lc+(hc-lc)/2])
			return string(out)
		}
		out = append(out, alphabet[lc])
	}
	return string(out)
}
