// Package devicesync merges one user's per-device conversation documents
// into a single canonical history.
package devicesync

import (
	"sort"

	"github.com/xaenox/finley/internal/models"
)

// signaturePrefix is how many leading characters of content take part in
// the dedup signature.
const signaturePrefix = 50

// Signature identifies a message for deduplication: role, the first 50
// characters of content, and the timestamp floored to the second.
type Signature struct {
	Role    models.Role
	Prefix  string
	Seconds int64
}

func SignatureOf(msg models.Message) Signature {
	prefix := []rune(msg.Content)
	if len(prefix) > signaturePrefix {
		prefix = prefix[:signaturePrefix]
	}
	return Signature{
		Role:    msg.Role,
		Prefix:  string(prefix),
		Seconds: msg.Timestamp.Unix(),
	}
}

// MergeMessages flattens the sets in order, keeps the first message seen per
// signature and returns the survivors sorted by timestamp. Equal timestamps
// keep their flattened order.
func MergeMessages(sets ...[]models.Message) []models.Message {
	seen := make(map[Signature]bool)
	merged := []models.Message{}
	for _, set := range sets {
		for _, msg := range set {
			sig := SignatureOf(msg)
			if seen[sig] {
				continue
			}
			seen[sig] = true
			merged = append(merged, msg)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// ReconcileProfiles returns a copy of the most recently written profile.
// Nil candidates are ignored; ties keep the earlier candidate.
func ReconcileProfiles(candidates ...*models.UserProfile) *models.UserProfile {
	var latest *models.UserProfile
	for _, p := range candidates {
		if p == nil {
			continue
		}
		if latest == nil || p.UpdatedAt.After(latest.UpdatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil
	}
	out := latest.Clone()
	return &out
}
