package localize

import (
	"github.com/fpang/image-localizer/internal/jsonutil"
)

// OverlayItem is one overlay string reported by the localization stage.
type OverlayItem struct {
	WhatText     string `json:"what_text"`
	PositionHint string `json:"position_hint"`
	ChangedTo    string `json:"changed_to"`
}

// ParseOverlayItems decodes the localization stage output. The text is passed
// to generation regardless, so callers treat a parse error as "unknown" and
// not as a job failure.
func ParseOverlayItems(localization string) ([]OverlayItem, error) {
	return jsonutil.ParseJSON[[]OverlayItem](localization)
}
