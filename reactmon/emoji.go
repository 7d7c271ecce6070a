package reactmon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
)

var (
	customEmojiMarkupRegex = regexp.MustCompile(`^<(a?):([A-Za-z0-9_~]*):([0-9]{5,25})>$`)
	customEmojiPairRegex   = regexp.MustCompile(`^([A-Za-z0-9_~]+):([0-9]{5,25})$`)
	snowflakeRegex         = regexp.MustCompile(`^[0-9]{5,25}$`)
)

// ParseEmoji accepts emoji in the forms moderators type them: chat markup ("<:name:id>",
// "<a:name:id>"), a "name:id" pair, a bare custom emoji ID, or a single unicode emoji.
func ParseEmoji(raw string) (Emoji, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Emoji{}, fmt.Errorf("empty emoji")
	}
	if m := customEmojiMarkupRegex.FindStringSubmatch(s); m != nil {
		return Emoji{ID: m[3], Name: m[2], Animated: m[1] == "a"}, nil
	}
	if m := customEmojiPairRegex.FindStringSubmatch(s); m != nil {
		return Emoji{ID: m[2], Name: m[1]}, nil
	}
	if snowflakeRegex.MatchString(s) {
		return Emoji{ID: s}, nil
	}

	if uniseg.GraphemeClusterCount(s) != 1 {
		return Emoji{}, fmt.Errorf("not a single emoji: %q", raw)
	}
	ascii := true
	for _, r := range s {
		if r > 0x7F {
			ascii = false
			break
		}
	}
	if ascii {
		return Emoji{}, fmt.Errorf("not an emoji: %q", raw)
	}
	return Emoji{Name: normalizeUnicodeEmoji(s)}, nil
}
