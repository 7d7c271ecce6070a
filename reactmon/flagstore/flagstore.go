// Private moderation flags on guild members.
//
// Flags are short strings (eg, "quick-remove") recorded against a key, usually "<guild>/<user>".
// They are never shown to members; moderators read them through the admin API.
package flagstore

import (
	"context"
	"sort"
)

type FlagStore interface {
	// returns flags sorted; empty (not an error) for unknown keys
	Get(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key string, flags []string) error
	// does not error if flags are not set
	Remove(ctx context.Context, key string, flags []string) error
}

func MemberKey(guildID, userID string) string {
	return guildID + "/" + userID
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
