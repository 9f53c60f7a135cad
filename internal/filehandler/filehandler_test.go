package filehandler

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeImagePayload(t *testing.T) {
	pngData := makePNG(t, 4, 4)

	t.Run("data url", func(t *testing.T) {
		data, mimeType, err := DecodeImagePayload(EncodeDataURL("image/png", pngData))
		if err != nil {
			t.Fatalf("DecodeImagePayload() error = %v", err)
		}
		if !bytes.Equal(data, pngData) || mimeType != "image/png" {
			t.Errorf("got %d bytes (%s)", len(data), mimeType)
		}
	})

	t.Run("bare base64 is sniffed", func(t *testing.T) {
		encoded := strings.TrimPrefix(EncodeDataURL("image/png", pngData), "data:image/png;base64,")
		_, mimeType, err := DecodeImagePayload(encoded)
		if err != nil {
			t.Fatalf("DecodeImagePayload() error = %v", err)
		}
		if mimeType != "image/png" {
			t.Errorf("mimeType = %q, want image/png", mimeType)
		}
	})

	errorCases := map[string]string{
		"empty":        "   ",
		"no comma":     "data:image/png;base64",
		"not base64":   "data:image/png;base64,***",
		"percent data": "data:image/png,abc",
		"empty body":   "data:image/png;base64,",
	}
	for name, payload := range errorCases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := DecodeImagePayload(payload); err == nil {
				t.Errorf("DecodeImagePayload(%q) succeeded, want error", payload)
			}
		})
	}

	if _, _, err := DecodeImagePayload(""); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("empty payload error = %v, want ErrEmptyPayload", err)
	}
}

func TestValidateImage(t *testing.T) {
	info, err := ValidateImage(makePNG(t, 12, 7))
	if err != nil {
		t.Fatalf("ValidateImage() error = %v", err)
	}
	if info.Format != "png" || info.Width != 12 || info.Height != 7 {
		t.Errorf("ValidateImage() = %+v", info)
	}
	if _, err := ValidateImage([]byte("definitely not an image")); err == nil {
		t.Error("ValidateImage(garbage) succeeded")
	}
	if _, err := ValidateImage(nil); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("ValidateImage(nil) error = %v", err)
	}
}

func TestDownscale(t *testing.T) {
	out, resized, err := Downscale(makePNG(t, 200, 100), "image/png", 50)
	if err != nil {
		t.Fatalf("Downscale() error = %v", err)
	}
	if !resized {
		t.Fatal("Downscale() did not resize an oversized image")
	}
	info, err := ValidateImage(out)
	if err != nil {
		t.Fatalf("ValidateImage(out) error = %v", err)
	}
	if info.Width != 50 || info.Height != 25 || info.Format != "png" {
		t.Errorf("downscaled = %+v, want 50x25 png", info)
	}

	jpegOut, resized, err := Downscale(makeJPEG(t, 60, 120), "image/jpeg", 30)
	if err != nil || !resized {
		t.Fatalf("Downscale(jpeg) resized=%v err=%v", resized, err)
	}
	if info, _ := ValidateImage(jpegOut); info.Width != 15 || info.Height != 30 || info.Format != "jpeg" {
		t.Errorf("downscaled jpeg = %+v, want 15x30 jpeg", info)
	}

	small := makePNG(t, 10, 10)
	out, resized, err = Downscale(small, "image/png", 50)
	if err != nil || resized || !bytes.Equal(out, small) {
		t.Errorf("small image should pass through unchanged (resized=%v, err=%v)", resized, err)
	}

	webp := []byte("RIFF....WEBP")
	out, resized, err = Downscale(webp, "image/webp", 10)
	if err != nil || resized || !bytes.Equal(out, webp) {
		t.Errorf("unsupported formats should pass through unchanged")
	}
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) {
		t.Helper()
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("b.png")
	write("a.JPG")
	write("notes.txt")
	write("nested/c.webp")

	paths, err := ScanDirectory(dir, ScanOptions{})
	if err != nil {
		t.Fatalf("ScanDirectory() error = %v", err)
	}
	var names []string
	for _, p := range paths {
		rel, _ := filepath.Rel(dir, p)
		names = append(names, filepath.ToSlash(rel))
	}
	want := "a.JPG,b.png,nested/c.webp"
	if strings.Join(names, ",") != want {
		t.Errorf("ScanDirectory() = %v, want %s", names, want)
	}

	top, err := ScanDirectory(dir, ScanOptions{MaxDepth: 1})
	if err != nil {
		t.Fatalf("ScanDirectory(MaxDepth=1) error = %v", err)
	}
	if len(top) != 2 {
		t.Errorf("MaxDepth=1 returned %d paths, want 2", len(top))
	}

	limited, _ := ScanDirectory(dir, ScanOptions{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("Limit=1 returned %d paths", len(limited))
	}

	if _, err := ScanDirectory(filepath.Join(dir, "missing"), ScanOptions{}); err == nil {
		t.Error("ScanDirectory(missing) succeeded")
	}
}

func TestLoadImageInput(t *testing.T) {
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "hero.png")
	pngData := makePNG(t, 3, 3)
	if err := os.WriteFile(pngPath, pngData, 0o644); err != nil {
		t.Fatal(err)
	}

	in, err := LoadImageInput(pngPath)
	if err != nil {
		t.Fatalf("LoadImageInput() error = %v", err)
	}
	if in.Name != "hero.png" || in.MIMEType != "image/png" || !bytes.Equal(in.Data, pngData) {
		t.Errorf("LoadImageInput() = {%s %s %d bytes}", in.Name, in.MIMEType, len(in.Data))
	}

	txtPath := filepath.Join(dir, "readme.txt")
	_ = os.WriteFile(txtPath, []byte("hi"), 0o644)
	if _, err := LoadImageInput(txtPath); err == nil {
		t.Error("LoadImageInput(.txt) succeeded")
	}

	emptyPath := filepath.Join(dir, "empty.jpg")
	_ = os.WriteFile(emptyPath, nil, 0o644)
	if _, err := LoadImageInput(emptyPath); err == nil {
		t.Error("LoadImageInput(empty) succeeded")
	}

	if _, err := LoadImageInputs([]string{pngPath, filepath.Join(dir, "nope.png")}); err == nil {
		t.Error("LoadImageInputs with a missing file succeeded")
	}
}

func TestExtensionForMIME(t *testing.T) {
	if got := ExtensionForMIME("IMAGE/PNG"); got != ".png" {
		t.Errorf("ExtensionForMIME(png) = %q", got)
	}
	if got := ExtensionForMIME("application/pdf"); got != "" {
		t.Errorf("ExtensionForMIME(pdf) = %q", got)
	}
}
