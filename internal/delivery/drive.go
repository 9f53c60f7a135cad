package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const driveFolderMIME = "application/vnd.google-apps.folder"

var folderIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`folders/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`id=([a-zA-Z0-9_-]+)`),
}

var bareFolderID = regexp.MustCompile(`^[a-zA-Z0-9_-]{10,}$`)

// ExtractFolderID returns the folder id from a Drive folder URL. A bare id is
// accepted as is. It returns "" when nothing looks like an id.
func ExtractFolderID(url string) string {
	url = strings.TrimSpace(url)
	for _, p := range folderIDPatterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	if bareFolderID.MatchString(url) {
		return url
	}
	return ""
}

// driveFiles is the slice of the Drive files API the uploader calls.
type driveFiles interface {
	Get(ctx context.Context, fileID string) (*drive.File, error)
	Create(ctx context.Context, file *drive.File, media io.Reader, mimeType string) (*drive.File, error)
}

type driveService struct {
	files *drive.FilesService
}

func (s driveService) Get(ctx context.Context, fileID string) (*drive.File, error) {
	return s.files.Get(fileID).
		Fields("id", "name", "mimeType").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

func (s driveService) Create(ctx context.Context, file *drive.File, media io.Reader, mimeType string) (*drive.File, error) {
	return s.files.Create(file).
		Media(media, googleapi.ContentType(mimeType)).
		Fields("id", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

// DriveUploader writes files into one Google Drive folder.
type DriveUploader struct {
	folderID   string
	folderName string
	files      driveFiles
}

// NewDriveUploader authenticates with a service-account JSON key file and
// targets the folder named by folderURL.
func NewDriveUploader(ctx context.Context, credentialsFile, folderURL string) (*DriveUploader, error) {
	folderID := ExtractFolderID(folderURL)
	if folderID == "" {
		return nil, fmt.Errorf("%w: no folder id in %q", ErrDestinationUnavailable, folderURL)
	}
	if credentialsFile == "" {
		return nil, fmt.Errorf("%w: drive credentials file required", ErrDestinationUnavailable)
	}
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return newDriveUploader(folderID, driveService{files: svc.Files}), nil
}

func newDriveUploader(folderID string, files driveFiles) *DriveUploader {
	return &DriveUploader{folderID: folderID, files: files}
}

// Destination implements Uploader.
func (d *DriveUploader) Destination() string {
	if d.folderName != "" {
		return fmt.Sprintf("drive:%s (%s)", d.folderName, d.folderID)
	}
	return "drive:" + d.folderID
}

// Verify checks that the folder exists and is visible to the service account.
func (d *DriveUploader) Verify(ctx context.Context) error {
	f, err := d.files.Get(ctx, d.folderID)
	if err != nil {
		return fmt.Errorf("%w: drive folder %s not accessible, share it with the service account: %w",
			ErrDestinationUnavailable, d.folderID, err)
	}
	if f.MimeType != "" && f.MimeType != driveFolderMIME {
		return fmt.Errorf("%w: %s is not a folder (%s)", ErrDestinationUnavailable, d.folderID, f.MimeType)
	}
	d.folderName = f.Name
	return nil
}

// Upload implements Uploader.
func (d *DriveUploader) Upload(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	f, err := d.files.Create(ctx, &drive.File{Name: name, Parents: []string{d.folderID}}, bytes.NewReader(data), mimeType)
	if err != nil {
		return "", fmt.Errorf("drive upload %s: %w", name, err)
	}
	if f.WebViewLink != "" {
		return f.WebViewLink, nil
	}
	return "drive:" + f.Id, nil
}
