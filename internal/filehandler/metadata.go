package filehandler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/evanoberholster/imagemeta"
)

// Metadata is the subset of EXIF data reported for an input image.
type Metadata struct {
	CameraMake  string
	CameraModel string
	HasGPS      bool
}

// InspectMetadata reads EXIF metadata from an in-memory image. Formats
// without EXIF return an error, which callers treat as "no metadata".
func InspectMetadata(data []byte) (Metadata, error) {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}
	gps := exifData.GPS
	return Metadata{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
		HasGPS:      gps.Latitude() != 0 || gps.Longitude() != 0,
	}, nil
}
