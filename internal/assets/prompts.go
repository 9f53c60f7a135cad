// Package assets embeds the prompt templates sent to the analysis model.
//
// Templates are stored as text files under prompts/ and parsed once at
// startup.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

//go:embed prompts/localization.txt
var localizationTemplate string

//go:embed prompts/aspect.txt
var aspectTemplate string

// template.Must panics on malformed templates, surfacing errors at startup
// rather than at call time.
var (
	localizationPromptTmpl = template.Must(template.New("localization").Parse(localizationTemplate))
	aspectPromptTmpl       = template.Must(template.New("aspect").Parse(aspectTemplate))
)

// LocalizationData is injected into the localization prompt.
type LocalizationData struct {
	Language          string
	ExtraInstructions string
}

// AspectData is injected into the aspect adaptation prompt.
type AspectData struct {
	AspectRatio string
}

// RenderLocalizationPrompt renders the overlay localization prompt for the
// target language. extra is appended verbatim when non-empty.
func RenderLocalizationPrompt(language, extra string) string {
	return renderTemplate(localizationPromptTmpl, LocalizationData{
		Language:          language,
		ExtraInstructions: strings.TrimSpace(extra),
	})
}

// RenderAspectPrompt renders the aspect adaptation prompt for ratio.
func RenderAspectPrompt(ratio string) string {
	return renderTemplate(aspectPromptTmpl, AspectData{AspectRatio: ratio})
}

func renderTemplate(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	// Execution errors are not expected with these templates; whatever was
	// rendered is returned.
	_ = tmpl.Execute(&buf, data)
	return strings.TrimSpace(buf.String())
}
