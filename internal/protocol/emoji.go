package protocol

import (
	"strings"

	"github.com/forPelevin/gomoji"
	"github.com/pkg/errors"
)

// ErrInvalidReaction is returned when a reaction is not exactly one emoji.
var ErrInvalidReaction = errors.New("reaction must be a single emoji")

// Variation selectors only pick text or emoji presentation; gomoji's table
// lists some emoji (U+2764 and others) without them.
var stripSelectors = strings.NewReplacer("\uFE0F", "", "\uFE0E", "")

// ValidateReaction checks that reaction contains one emoji and nothing else.
func ValidateReaction(reaction string) error {
	if singleEmoji(reaction) || singleEmoji(stripSelectors.Replace(reaction)) {
		return nil
	}
	return ErrInvalidReaction
}

func singleEmoji(s string) bool {
	if s == "" {
		return false
	}
	found := gomoji.CollectAll(s)
	return len(found) == 1 && stripSelectors.Replace(found[0].Character) == stripSelectors.Replace(s)
}
