package idhash

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"

	"experiment-lab/internal/domain"
)

// ComputeSnapshotID computes a deterministic fingerprint for a loaded
// dataset. Formula: SHA256 over the experiment id followed by the
// (unit_id|variant|eligible|clicked|converted|bounced) lines in unit_id
// order. The first 16 digest bytes are base58-encoded, giving a compact id
// safe for file names and table keys. The same rows in any order produce the
// same id; any outcome or assignment change produces a different one.
func ComputeSnapshotID(experimentID string, units []*domain.ExperimentUnit) string {
	lines := make([]string, len(units))
	for i, u := range units {
		lines[i] = fmt.Sprintf("%s|%s|%t|%t|%t|%t",
			u.UnitID,
			u.Variant,
			u.Eligible,
			u.Clicked,
			u.Converted,
			u.Bounced,
		)
	}
	sort.Strings(lines)

	h := sha256.New()
	h.Write([]byte(experimentID))
	h.Write([]byte{'\n'})
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}

	sum := h.Sum(nil)
	return base58.Encode(sum[:16])
}
