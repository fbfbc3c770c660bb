package vault

import "strings"

// MaskPlaceholder replaces tokens too short to partially reveal.
const MaskPlaceholder = "****"

const minMaskableLength = 10

// maskRule reveals keep leading runes of tokens starting with prefix.
type maskRule struct {
	prefix string
	keep   int
}

var maskRules = []maskRule{
	{prefix: "sk-", keep: 11},
	{prefix: "ghp_", keep: 8},
	{prefix: "gho_", keep: 8},
	{prefix: "secret_", keep: len("secret_") + 8},
}

// MaskToken returns a display-safe form of token: a recognized prefix plus a
// few characters, a fixed mask, then the last 4 characters. Unknown tokens
// show their first 4 characters. The result depends only on token.
func MaskToken(token string) string {
	runes := []rune(token)
	if len(runes) < minMaskableLength {
		return MaskPlaceholder
	}

	for _, rule := range maskRules {
		if strings.HasPrefix(token, rule.prefix) && len(runes) > rule.keep+4 {
			return reveal(runes, rule.keep)
		}
	}
	return reveal(runes, 4)
}

func reveal(runes []rune, keep int) string {
	return string(runes[:keep]) + MaskPlaceholder + string(runes[len(runes)-4:])
}
