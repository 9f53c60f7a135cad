package localize

import "strings"

// ComposePrompt joins aspect guidance (when present) and the localization
// result into the generation instruction.
func ComposePrompt(aspect, localization string) string {
	aspect = strings.TrimSpace(aspect)
	localization = strings.TrimSpace(localization)
	if aspect == "" {
		return localization
	}
	return aspect + "\n\n" + localization
}
