package insight

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"campaignpulse/internal/campaign"
)

// Fingerprint digests a value's JSON encoding. Aggregated views encode byte-identically for
// equal inputs, so equal data always yields the same fingerprint.
func Fingerprint(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Views are plain structs of strings and integers.
		panic(fmt.Sprintf("insight: fingerprint: %v", err))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// SnapshotFingerprints returns the fingerprint of every chart view plus the summary
// fingerprint computed over the whole snapshot.
func SnapshotFingerprints(s campaign.Snapshot) map[string]string {
	out := make(map[string]string, len(campaign.ChartKeys)+1)
	for _, chart := range campaign.ChartKeys {
		view, _ := s.View(chart)
		out[chart] = Fingerprint(view)
	}
	out[SummaryKey] = Fingerprint(s)
	return out
}
