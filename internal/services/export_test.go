package services

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"systemsmap-client/internal/models"
	"systemsmap-client/internal/state"
)

func inlinePNG() models.Artifact {
	a, _ := models.ParseArtifact(base64.StdEncoding.EncodeToString(pngBytes))
	return a
}

func TestExport_FetchFailureNeverReachesSink(t *testing.T) {
	fb := &fakeBackend{fetchErr: errors.New("HTTP 404")}
	sink := &recordingSink{}
	st := state.New(nil)
	e := NewExporter(fb, sink, st, nil)

	remote, _ := models.ParseArtifact("https://host/map.png")
	_, err := e.Export(context.Background(), remote)

	var xerr *ExportError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, StageFetch, xerr.Stage)
	assert.Zero(t, sink.count())
	assert.Equal(t, []models.NotificationKind{models.NotifyExport}, notificationKinds(st.Notifications()))
	assert.False(t, st.Busy().Export)
}

func TestExport_DecodeFailureNeverReachesSink(t *testing.T) {
	for _, raw := range []string{"not-base64!", base64.StdEncoding.EncodeToString([]byte("plain text"))} {
		sink := &recordingSink{}
		e := NewExporter(&fakeBackend{}, sink, state.New(nil), nil)

		a, _ := models.ParseArtifact(raw)
		_, err := e.Export(context.Background(), a)

		var xerr *ExportError
		require.True(t, errors.As(err, &xerr), raw)
		assert.Equal(t, StageDecode, xerr.Stage)
		assert.Zero(t, sink.count())
	}
}

func TestExport_InlineSaved(t *testing.T) {
	sink := &recordingSink{}
	st := state.New(nil)
	e := NewExporter(&fakeBackend{}, sink, st, nil)

	out, err := e.Export(context.Background(), inlinePNG())
	require.NoError(t, err)
	assert.Equal(t, len(pngBytes), out.Bytes)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, pngBytes, sink.saved[0])
	assert.Equal(t, []models.NotificationKind{models.NotifyInfo}, notificationKinds(st.Notifications()))
}

func TestExport_SinkFailure(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	e := NewExporter(&fakeBackend{}, sink, state.New(nil), nil)

	_, err := e.Export(context.Background(), inlinePNG())
	var xerr *ExportError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, StageWrite, xerr.Stage)
}

func TestExportCurrent(t *testing.T) {
	fb := &fakeBackend{fetchData: pngBytes}
	sink := &recordingSink{}
	st := state.New(nil)
	e := NewExporter(fb, sink, st, nil)

	_, err := e.ExportCurrent(context.Background())
	var xerr *ExportError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, StageSource, xerr.Stage)

	NewDiagramViewModel(st, fb, nil, nil, nil).Present("https://host/map.png")
	_, err = e.ExportCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sink.count())
}

func TestExport_RejectedWhileBusy(t *testing.T) {
	sink := &recordingSink{}
	st := state.New(nil)
	e := NewExporter(&fakeBackend{}, sink, st, nil)

	require.True(t, st.TryBegin(models.ActivityExport))
	_, err := e.Export(context.Background(), inlinePNG())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Zero(t, sink.count())
	st.End(models.ActivityExport)
}

func TestDownloadSink_FixedNameAndNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	sink := &DownloadSink{Dir: dir}

	out, err := sink.Save(context.Background(), pngBytes, "image/png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DownloadFilename), out.Location)

	// A second export overwrites the same file.
	_, err = sink.Save(context.Background(), []byte("\x89PNG\r\n\x1a\nv2"), "image/png")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DownloadFilename, entries[0].Name())

	got, err := os.ReadFile(out.Location)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG\r\n\x1a\nv2", string(got))
}

func TestDownloadSink_MissingDir(t *testing.T) {
	sink := &DownloadSink{Dir: filepath.Join(t.TempDir(), "missing")}
	_, err := sink.Save(context.Background(), pngBytes, "image/png")
	assert.Error(t, err)
}

func TestGallerySink_UniqueNames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Systems Maps")
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	sink := &GallerySink{Dir: dir, now: func() time.Time { return fixed }}

	a, err := sink.Save(context.Background(), pngBytes, "image/png")
	require.NoError(t, err)
	b, err := sink.Save(context.Background(), pngBytes, "image/jpeg")
	require.NoError(t, err)

	assert.NotEqual(t, a.Location, b.Location)
	assert.True(t, strings.HasPrefix(filepath.Base(a.Location), "systems_map_20260301T093000_"))
	assert.Equal(t, ".png", filepath.Ext(a.Location))
	assert.Equal(t, ".jpg", filepath.Ext(b.Location))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestClipboardSink(t *testing.T) {
	orig := clipboardWriteAll
	defer func() { clipboardWriteAll = orig }()

	var copied string
	clipboardWriteAll = func(text string) error {
		copied = text
		return nil
	}

	out, err := (&ClipboardSink{}).Save(context.Background(), pngBytes, "image/png")
	require.NoError(t, err)
	assert.Equal(t, models.DataURL("image/png", pngBytes), copied)
	assert.NotEmpty(t, out.Note)

	clipboardWriteAll = func(string) error { return errors.New("no clipboard utility") }
	_, err = (&ClipboardSink{}).Save(context.Background(), pngBytes, "image/png")
	assert.Error(t, err)
}

func TestSelectSink(t *testing.T) {
	downloads := t.TempDir()
	gallery := t.TempDir()
	missing := filepath.Join(t.TempDir(), "nope")

	tests := []struct {
		name     string
		kind     string
		download string
		gallery  string
		want     string
		wantErr  bool
	}{
		{"auto prefers downloads", "auto", downloads, gallery, SinkDownload, false},
		{"auto falls back to gallery", "auto", missing, gallery, SinkGallery, false},
		{"auto falls back to clipboard", "", missing, missing, SinkClipboard, false},
		{"explicit gallery", SinkGallery, downloads, missing, SinkGallery, false},
		{"explicit clipboard", SinkClipboard, downloads, gallery, SinkClipboard, false},
		{"download without dir", SinkDownload, "", gallery, "", true},
		{"unknown", "printer", downloads, gallery, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := SelectSink(tt.kind, tt.download, tt.gallery)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sink.Name())
		})
	}
}
