package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"

	"systemsmap-client/internal/models"
)

const (
	SinkDownload  = "download"
	SinkGallery   = "gallery"
	SinkClipboard = "clipboard"

	// DownloadFilename is the fixed name browser-style downloads use.
	DownloadFilename = "systems_map.png"

	clipboardNote = "The image was copied to the clipboard as a data URL; paste it into an image viewer or browser address bar to save the file"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

// DownloadSink behaves like a browser download: the bytes land in the
// downloads directory under a fixed file name.
type DownloadSink struct {
	Dir string
}

func (s *DownloadSink) Name() string { return SinkDownload }

func (s *DownloadSink) Save(ctx context.Context, data []byte, mediaType string) (*models.ExportOutcome, error) {
	path := filepath.Join(s.Dir, DownloadFilename)
	if err := writeFileAtomic(ctx, path, data); err != nil {
		return nil, err
	}
	return &models.ExportOutcome{Sink: SinkDownload, Location: path, Bytes: len(data)}, nil
}

// GallerySink saves straight into a photo library directory, one file per
// export.
type GallerySink struct {
	Dir string
	now func() time.Time
}

func (s *GallerySink) Name() string { return SinkGallery }

func (s *GallerySink) Save(ctx context.Context, data []byte, mediaType string) (*models.ExportOutcome, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to open photo library %s: %w", s.Dir, err)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	name := fmt.Sprintf("systems_map_%s_%s%s",
		now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8],
		extensionFor(mediaType))
	path := filepath.Join(s.Dir, name)
	if err := writeFileAtomic(ctx, path, data); err != nil {
		return nil, err
	}
	return &models.ExportOutcome{Sink: SinkGallery, Location: path, Bytes: len(data)}, nil
}

// ClipboardSink is the fallback when nothing can be written directly.
type ClipboardSink struct{}

func (s *ClipboardSink) Name() string { return SinkClipboard }

func (s *ClipboardSink) Save(ctx context.Context, data []byte, mediaType string) (*models.ExportOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := clipboardWriteAll(models.DataURL(mediaType, data)); err != nil {
		return nil, fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return &models.ExportOutcome{Sink: SinkClipboard, Location: "clipboard", Bytes: len(data), Note: clipboardNote}, nil
}

// SelectSink picks the export capability once at startup. "auto" prefers an
// existing downloads directory, then an existing photo library, then the
// clipboard.
func SelectSink(kind, downloadDir, galleryDir string) (Sink, error) {
	switch kind {
	case SinkDownload:
		if downloadDir == "" {
			return nil, fmt.Errorf("download sink needs a download directory")
		}
		return &DownloadSink{Dir: downloadDir}, nil
	case SinkGallery:
		if galleryDir == "" {
			return nil, fmt.Errorf("gallery sink needs a photo library directory")
		}
		return &GallerySink{Dir: galleryDir}, nil
	case SinkClipboard:
		return &ClipboardSink{}, nil
	case "auto", "":
		if isDir(downloadDir) {
			return &DownloadSink{Dir: downloadDir}, nil
		}
		if isDir(galleryDir) {
			return &GallerySink{Dir: galleryDir}, nil
		}
		return &ClipboardSink{}, nil
	}
	return nil, fmt.Errorf("unknown export sink %q", kind)
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it into place, so a failed export never leaves a partial file behind.
func writeFileAtomic(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".systems_map-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}

func extensionFor(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	return ".png"
}
