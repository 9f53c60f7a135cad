package openrouter

import (
	"encoding/json"
	"strings"
)

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Modalities  []string      `json:"modalities,omitempty"`
	ImageConfig *imageConfig  `json:"image_config,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type imageConfig struct {
	AspectRatio string `json:"aspect_ratio"`
	ImageSize   string `json:"image_size,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      responseMessage `json:"message"`
		FinishReason string          `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

type responseMessage struct {
	// Content is either a string or an array of typed parts.
	Content json.RawMessage `json:"content"`
	Refusal string          `json:"refusal"`
	Images  []struct {
		Type     string   `json:"type"`
		ImageURL imageURL `json:"image_url"`
	} `json:"images"`
}

// text flattens the message content into a single string.
func (m responseMessage) text() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var parts []contentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type != "" && p.Type != "text" {
			continue
		}
		if b.Len() > 0 && p.Text != "" {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

// imageParts returns content parts carrying images, used by providers that
// return generated images inline in content rather than in images.
func (m responseMessage) imageParts() []string {
	var parts []contentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return nil
	}
	var urls []string
	for _, p := range parts {
		if p.ImageURL != nil && p.ImageURL.URL != "" {
			urls = append(urls, p.ImageURL.URL)
		}
	}
	return urls
}
