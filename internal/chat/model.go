package chat

import "os"

// Gemini Model IDs
//
// | Model Name                  | API Model ID                | Use Case                      |
// |-----------------------------|-----------------------------|-------------------------------|
// | Gemini 3 Flash (Preview)    | gemini-3-flash-preview      | Overlay and aspect analysis   |
// | Gemini 2.5 Flash            | gemini-2.5-flash            | Stable, balanced analysis     |
// | Gemini 3 Pro Image          | gemini-3-pro-image-preview  | Localized image generation    |
// | Gemini 2.5 Flash Image      | gemini-2.5-flash-image      | Cheaper image generation      |
const (
	// ModelGemini3FlashPreview is best for speed + intelligence.
	ModelGemini3FlashPreview = "gemini-3-flash-preview"

	// ModelGemini25Flash is stable, balanced performance.
	ModelGemini25Flash = "gemini-2.5-flash"

	// ModelGemini3ProImage is for advanced image generation/edit.
	ModelGemini3ProImage = "gemini-3-pro-image-preview"

	// ModelGemini25FlashImage is the lower-cost image model.
	ModelGemini25FlashImage = "gemini-2.5-flash-image"
)

// DefaultAnalysisModel answers the localization and aspect questions.
// Can be overridden via GEMINI_MODEL environment variable.
const DefaultAnalysisModel = ModelGemini3FlashPreview

// DefaultGenerationModel renders the localized image.
// Can be overridden via GEMINI_IMAGE_MODEL environment variable.
const DefaultGenerationModel = ModelGemini3ProImage

// GetModelName returns the analysis model, resolved from:
// 1. GEMINI_MODEL environment variable (if set)
// 2. Default: gemini-3-flash-preview
func GetModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultAnalysisModel
}

// GetImageModelName returns the generation model, resolved from
// GEMINI_IMAGE_MODEL or the default gemini-3-pro-image-preview.
func GetImageModelName() string {
	if env := os.Getenv("GEMINI_IMAGE_MODEL"); env != "" {
		return env
	}
	return DefaultGenerationModel
}
