package batch

import (
	"fmt"
	"strings"
)

// AspectRatioOption pairs a display label with the ratio sent to the models.
// The Original option has an empty Ratio.
type AspectRatioOption struct {
	Label string
	Ratio string
}

// AspectRatioOptions lists the supported targets in display order.
var AspectRatioOptions = []AspectRatioOption{
	{Label: "Original", Ratio: ""},
	{Label: "1:1 - Square | Instagram", Ratio: "1:1"},
	{Label: "2:3 - Portrait", Ratio: "2:3"},
	{Label: "3:2 - DSLR", Ratio: "3:2"},
	{Label: "4:3 - Standard", Ratio: "4:3"},
	{Label: "4:5 - Instagram Feed", Ratio: "4:5"},
	{Label: "9:16 - Reels", Ratio: "9:16"},
	{Label: "16:9 - YouTube", Ratio: "16:9"},
}

// IsSupportedAspectRatio reports whether ratio is one of the non-original options.
func IsSupportedAspectRatio(ratio string) bool {
	if ratio == "" {
		return false
	}
	for _, opt := range AspectRatioOptions {
		if opt.Ratio == ratio {
			return true
		}
	}
	return false
}

// ParseAspectRatio accepts either a ratio ("4:5") or a display label
// ("4:5 - Instagram Feed") and returns the ratio. "", "original", "none"
// and "unchanged" all select the original aspect and return "".
func ParseAspectRatio(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "original", "none", "unchanged":
		return "", nil
	}
	for _, opt := range AspectRatioOptions {
		if opt.Ratio != "" && (s == opt.Ratio || strings.EqualFold(s, opt.Label)) {
			return opt.Ratio, nil
		}
	}
	return "", fmt.Errorf("unsupported aspect ratio %q", s)
}

// AspectRatioLabel returns the display label for ratio.
func AspectRatioLabel(ratio string) string {
	for _, opt := range AspectRatioOptions {
		if opt.Ratio == ratio {
			return opt.Label
		}
	}
	return ratio
}
