package delivery

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/drive/v3"

	"github.com/fpang/image-localizer/internal/archive"
	"github.com/fpang/image-localizer/internal/batch"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type recordingUploader struct {
	names []string
	fail  map[string]bool
}

func (r *recordingUploader) Destination() string { return "memory" }

func (r *recordingUploader) Verify(ctx context.Context) error { return nil }

func (r *recordingUploader) Upload(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	if r.fail[name] {
		return "", errors.New("quota exceeded")
	}
	r.names = append(r.names, name)
	return "mem://" + name, nil
}

func TestUploadAll(t *testing.T) {
	img := pngBytes(t)
	successes := []batch.JobOutcome{
		{Index: 0, OriginalName: "a.jpg", Status: batch.StatusSuccess, Image: img, ImageMIMEType: "image/png"},
		{Index: 2, OriginalName: "a.jpg", Status: batch.StatusSuccess, Image: img, ImageMIMEType: "image/png"},
		{Index: 3, OriginalName: "bad.jpg", Status: batch.StatusSuccess, Image: []byte("garbage")},
		{Index: 4, OriginalName: "d.jpg", Status: batch.StatusSuccess, Image: img, ImageMIMEType: "image/png"},
	}
	u := &recordingUploader{fail: map[string]bool{"generated_d.jpg": true}}

	report, err := UploadAll(context.Background(), u, archive.DefaultPrefix, successes)
	if err != nil {
		t.Fatalf("UploadAll() error = %v", err)
	}
	if got := strings.Join(u.names, ","); got != "generated_a.jpg,generated_a_2.jpg" {
		t.Errorf("uploaded names = %s", got)
	}
	if len(report.Uploaded) != 2 || report.Uploaded[1].Location != "mem://generated_a_2.jpg" {
		t.Errorf("Uploaded = %+v", report.Uploaded)
	}
	if len(report.Errors) != 2 || report.Errors[0].Index != 3 || report.Errors[1].Index != 4 {
		t.Errorf("Errors = %+v", report.Errors)
	}
}

func TestUploadAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u := &recordingUploader{}
	_, err := UploadAll(ctx, u, "", []batch.JobOutcome{{Index: 0, OriginalName: "a.png", Status: batch.StatusSuccess, Image: pngBytes(t)}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("UploadAll() error = %v, want context.Canceled", err)
	}
	if len(u.names) != 0 {
		t.Errorf("uploaded %v after cancel", u.names)
	}
}

func TestExtractFolderID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://drive.google.com/drive/folders/1AbC_d-EfGhIjK?usp=sharing", "1AbC_d-EfGhIjK"},
		{"https://drive.google.com/drive/u/0/folders/0B123456789", "0B123456789"},
		{"https://drive.google.com/open?id=1ZyXwVuTsR", "1ZyXwVuTsR"},
		{"1AbCdEfGhIjKlMnOp", "1AbCdEfGhIjKlMnOp"},
		{"https://example.com/nothing", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractFolderID(tt.url); got != tt.want {
			t.Errorf("ExtractFolderID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

type fakeDrive struct {
	folder  *drive.File
	getErr  error
	created []*drive.File
	bodies  [][]byte
	mimes   []string
}

func (f *fakeDrive) Get(ctx context.Context, fileID string) (*drive.File, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.folder, nil
}

func (f *fakeDrive) Create(ctx context.Context, file *drive.File, media io.Reader, mimeType string) (*drive.File, error) {
	body, _ := io.ReadAll(media)
	f.created = append(f.created, file)
	f.bodies = append(f.bodies, body)
	f.mimes = append(f.mimes, mimeType)
	return &drive.File{Id: "file-1", WebViewLink: "https://drive.google.com/file/d/file-1/view"}, nil
}

func TestDriveUploader(t *testing.T) {
	fake := &fakeDrive{folder: &drive.File{Id: "folder-1", Name: "Localized", MimeType: driveFolderMIME}}
	d := newDriveUploader("folder-1", fake)

	if err := d.Verify(context.Background()); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !strings.Contains(d.Destination(), "Localized") {
		t.Errorf("Destination() = %q", d.Destination())
	}

	loc, err := d.Upload(context.Background(), "generated_a.png", "image/png", []byte("png"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if loc != "https://drive.google.com/file/d/file-1/view" {
		t.Errorf("location = %q", loc)
	}
	created := fake.created[0]
	if created.Name != "generated_a.png" || len(created.Parents) != 1 || created.Parents[0] != "folder-1" {
		t.Errorf("created = %+v", created)
	}
	if string(fake.bodies[0]) != "png" || fake.mimes[0] != "image/png" {
		t.Errorf("media = %q (%s)", fake.bodies[0], fake.mimes[0])
	}
}

func TestDriveUploader_VerifyFailures(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeDrive
	}{
		{"not shared", &fakeDrive{getErr: errors.New("404 File not found")}},
		{"not a folder", &fakeDrive{folder: &drive.File{Id: "x", MimeType: "image/png"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newDriveUploader("x", tt.fake).Verify(context.Background())
			if !errors.Is(err, ErrDestinationUnavailable) {
				t.Errorf("Verify() error = %v, want ErrDestinationUnavailable", err)
			}
		})
	}
}

func TestNewDriveUploader_BadURL(t *testing.T) {
	_, err := NewDriveUploader(context.Background(), "key.json", "https://example.com")
	if !errors.Is(err, ErrDestinationUnavailable) {
		t.Errorf("NewDriveUploader() error = %v, want ErrDestinationUnavailable", err)
	}
}

type fakeBucket struct {
	headErr error
	keys    []string
}

func (f *fakeBucket) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeBucket) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestS3Uploader(t *testing.T) {
	fake := &fakeBucket{}
	u := NewS3Uploader(fake, "media", "sess/generated/b1")

	if err := u.Verify(context.Background()); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if u.Destination() != "s3://media/sess/generated/b1" {
		t.Errorf("Destination() = %q", u.Destination())
	}
	key, err := u.Upload(context.Background(), "generated_a.png", "image/png", []byte("png"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if key != "sess/generated/b1/generated_a.png" || fake.keys[0] != key {
		t.Errorf("key = %q, put %v", key, fake.keys)
	}

	fake.headErr = errors.New("forbidden")
	if err := u.Verify(context.Background()); !errors.Is(err, ErrDestinationUnavailable) {
		t.Errorf("Verify() error = %v, want ErrDestinationUnavailable", err)
	}
	if err := NewS3Uploader(fake, "", "").Verify(context.Background()); !errors.Is(err, ErrDestinationUnavailable) {
		t.Errorf("Verify() without bucket = %v", err)
	}
}
