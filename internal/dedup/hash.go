package dedup

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"slices"

	"github.com/fyrsmithlabs/stackprobe/internal/scoring"
)

// canonicalTraits is the hashed projection of scoring.Traits. Version and
// debug output are left out so engine upgrades and dev builds hash the same
// as long as the evidence is the same.
type canonicalTraits struct {
	FrameworkPrimary string   `json:"framework_primary"`
	FrameworkMeta    []string `json:"framework_meta"`
	StateManagement  []string `json:"state_management"`
	DataLayer        []string `json:"data_layer"`
	Confidence       string   `json:"confidence"`
}

// Hash returns a stable hex token for the scoring-relevant fields of t.
// It is a dedup key, not a security boundary.
func Hash(t scoring.Traits) string {
	c := canonicalTraits{
		FrameworkPrimary: t.FrameworkPrimary,
		FrameworkMeta:    sortedCopy(t.FrameworkMeta),
		StateManagement:  sortedCopy(t.StateManagement),
		DataLayer:        sortedCopy(t.DataLayer),
		Confidence:       string(t.Confidence),
	}
	// marshal of strings and string slices cannot fail
	data, _ := json.Marshal(c)

	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	slices.Sort(out)
	return out
}
