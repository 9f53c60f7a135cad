// Package filehandler loads product images from disk, encodes them for the
// remote models, and validates or downscales image payloads.
//
// Only still images are supported. HEIC/HEIF inputs are accepted and sent
// as-is; they cannot be validated or downscaled locally.
package filehandler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/batch"
)

// SupportedImageExtensions maps accepted input extensions to MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// extensionsByMIME is the preferred extension for generated output.
var extensionsByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"image/heif": ".heif",
}

// MaxInputBytes caps a single input file.
const MaxInputBytes = 50 << 20

// GetMIMEType returns the MIME type for a given file extension.
func GetMIMEType(ext string) (string, error) {
	if mimeType, ok := SupportedImageExtensions[strings.ToLower(ext)]; ok {
		return mimeType, nil
	}
	return "", fmt.Errorf("unsupported file extension: %s", ext)
}

// ExtensionForMIME returns the canonical extension for mimeType, or "" if unknown.
func ExtensionForMIME(mimeType string) string {
	return extensionsByMIME[strings.ToLower(mimeType)]
}

// IsImage returns true if the file extension corresponds to a supported image.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// LoadImageInput reads an image file into a batch input named after the
// file's base name.
func LoadImageInput(filePath string) (batch.ImageInput, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return batch.ImageInput{}, fmt.Errorf("file not found: %s", filePath)
		}
		return batch.ImageInput{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return batch.ImageInput{}, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}
	if info.Size() > MaxInputBytes {
		return batch.ImageInput{}, fmt.Errorf("file %s is %d bytes, limit is %d", filePath, info.Size(), MaxInputBytes)
	}

	mimeType, err := GetMIMEType(filepath.Ext(filePath))
	if err != nil {
		return batch.ImageInput{}, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return batch.ImageInput{}, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return batch.ImageInput{}, fmt.Errorf("file is empty: %s", filePath)
	}

	log.Debug().
		Str("path", filePath).
		Str("mime_type", mimeType).
		Int("size_bytes", len(data)).
		Msg("Image loaded")

	if meta, err := InspectMetadata(data); err == nil && meta.HasGPS {
		log.Warn().
			Str("path", filePath).
			Str("camera", strings.TrimSpace(meta.CameraMake+" "+meta.CameraModel)).
			Msg("Input carries GPS coordinates in EXIF; they are sent to the remote model unless the image is downscaled")
	}

	return batch.ImageInput{
		Name:     filepath.Base(filePath),
		MIMEType: mimeType,
		Data:     data,
	}, nil
}

// LoadImageInputs loads every path in order. The first failure aborts.
func LoadImageInputs(paths []string) ([]batch.ImageInput, error) {
	inputs := make([]batch.ImageInput, 0, len(paths))
	for _, p := range paths {
		in, err := LoadImageInput(p)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}
