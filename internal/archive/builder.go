// Package archive packs the successful outputs of a batch into a single
// in-memory ZIP file.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/filehandler"
)

const (
	// DefaultName is the file name offered for the finished archive.
	DefaultName = "generated_images.zip"
	// DefaultPrefix is prepended to every entry name.
	DefaultPrefix = "generated_"
)

// Compression selects the ZIP method used for entries.
type Compression string

const (
	CompressionDeflate Compression = "deflate"
	// CompressionZstd writes method 93 entries. Not every unzip tool reads them.
	CompressionZstd  Compression = "zstd"
	CompressionStore Compression = "store"
)

// ParseCompression maps a config value to a Compression. Empty means deflate.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CompressionDeflate, nil
	case CompressionDeflate, CompressionZstd, CompressionStore:
		return c, nil
	default:
		return "", fmt.Errorf("unknown archive compression %q (want deflate, zstd or store)", s)
	}
}

func (c Compression) method() uint16 {
	switch c {
	case CompressionZstd:
		return zstd.ZipMethodWinZip
	case CompressionStore:
		return zip.Store
	default:
		return zip.Deflate
	}
}

// Entry describes one file written to the archive.
type Entry struct {
	Name  string
	Index int
	Size  int
}

// Archive is a finished ZIP held in memory.
type Archive struct {
	Name    string
	Data    []byte
	Entries []Entry
}

// Len returns the number of entries.
func (a Archive) Len() int { return len(a.Entries) }

// WriteFile writes the archive to dir and returns the full path.
func (a Archive) WriteFile(dir string) (string, error) {
	path := filepath.Join(dir, a.Name)
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	return path, nil
}

// ItemError reports a success that could not be added to the archive.
type ItemError struct {
	Index        int
	OriginalName string
	Err          error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("archive item %d (%s): %v", e.Index, e.OriginalName, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Builder creates archives from batch successes.
type Builder struct {
	Name        string
	Prefix      string
	Compression Compression
	// now is stamped on every entry; tests pin it.
	now func() time.Time
}

// NewBuilder returns a Builder with the default name, prefix and deflate
// compression.
func NewBuilder() *Builder {
	return &Builder{
		Name:        DefaultName,
		Prefix:      DefaultPrefix,
		Compression: CompressionDeflate,
		now:         time.Now,
	}
}

// Build writes every success into a new archive, in index order. A payload
// that is not a decodable image is reported as an ItemError and skipped; it
// never aborts the rest of the archive. The returned error is reserved for
// failures of the ZIP writer itself.
func (b *Builder) Build(successes []batch.JobOutcome) (Archive, []ItemError, error) {
	name := b.Name
	if name == "" {
		name = DefaultName
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	method := b.Compression.method()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	registerCompressors(zw)

	names := EntryNames(b.Prefix, successes)
	archive := Archive{Name: name}
	var itemErrs []ItemError

	for i, outcome := range successes {
		if !outcome.Succeeded() {
			itemErrs = append(itemErrs, ItemError{
				Index:        outcome.Index,
				OriginalName: outcome.OriginalName,
				Err:          errors.New("outcome is not a success"),
			})
			continue
		}
		if _, err := filehandler.ValidateImage(outcome.Image); err != nil {
			log.Warn().
				Int("job", outcome.Index).
				Str("file", outcome.OriginalName).
				Err(err).
				Msg("Skipping undecodable image in archive")
			itemErrs = append(itemErrs, ItemError{Index: outcome.Index, OriginalName: outcome.OriginalName, Err: err})
			continue
		}

		header := &zip.FileHeader{Name: names[i], Method: method}
		header.Modified = now()
		w, err := zw.CreateHeader(header)
		if err != nil {
			return Archive{}, itemErrs, fmt.Errorf("create archive entry %s: %w", names[i], err)
		}
		if _, err := w.Write(outcome.Image); err != nil {
			return Archive{}, itemErrs, fmt.Errorf("write archive entry %s: %w", names[i], err)
		}
		archive.Entries = append(archive.Entries, Entry{Name: names[i], Index: outcome.Index, Size: len(outcome.Image)})
	}

	if err := zw.Close(); err != nil {
		return Archive{}, itemErrs, fmt.Errorf("close archive: %w", err)
	}
	archive.Data = buf.Bytes()

	log.Info().
		Str("archive", archive.Name).
		Int("entries", archive.Len()).
		Int("skipped", len(itemErrs)).
		Int("bytes", len(archive.Data)).
		Str("compression", string(b.Compression)).
		Msg("Archive built")
	return archive, itemErrs, nil
}

// EntryNames derives one output name per outcome: prefix plus the base of
// the original name. When a name is already taken the outcome's index is
// inserted before the extension, so duplicates never overwrite each other.
// Names are assigned in slice order and are stable for the same input.
func EntryNames(prefix string, outcomes []batch.JobOutcome) []string {
	taken := make(map[string]bool, len(outcomes))
	names := make([]string, len(outcomes))
	for i, o := range outcomes {
		base := filepath.Base(filepath.ToSlash(o.OriginalName))
		if base == "." || base == "/" || base == "" {
			base = "image_" + strconv.Itoa(o.Index) + filehandler.ExtensionForMIME(o.ImageMIMEType)
		}
		candidate := prefix + base
		if taken[candidate] {
			ext := filepath.Ext(base)
			stem := prefix + strings.TrimSuffix(base, ext)
			candidate = stem + "_" + strconv.Itoa(o.Index) + ext
			for n := 2; taken[candidate]; n++ {
				candidate = stem + "_" + strconv.Itoa(o.Index) + "_" + strconv.Itoa(n) + ext
			}
		}
		taken[candidate] = true
		names[i] = candidate
	}
	return names
}

func registerCompressors(zw *zip.Writer) {
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(zstd.WithEncoderLevel(zstd.SpeedBetterCompression)))
}
