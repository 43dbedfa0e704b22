package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"systemsmap-client/internal/config"
	"systemsmap-client/internal/models"
	"systemsmap-client/internal/services"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestApp(t *testing.T) (*app, string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/start_conversation", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"conversation_id": "1"})
	})
	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		var req models.AnalyzeRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(models.AnalyzeResponse{
			Analysis: "loops everywhere",
			Conversation: []models.Message{
				{Role: models.RoleUser, Content: req.Query},
				{Role: models.RoleAssistant, Content: "loops everywhere"},
			},
		})
	})
	mux.HandleFunc("/upload-documents", func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		names := []string{}
		for _, fh := range r.MultipartForm.File["files"] {
			names = append(names, fh.Filename)
		}
		m := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
		json.NewEncoder(w).Encode(models.UploadResponse{UploadedFiles: names, SystemsMap: &m})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	downloads := t.TempDir()
	c := config.Defaults()
	c.BackendURL = srv.URL
	c.ExportSink = services.SinkDownload
	c.DownloadDir = downloads

	a, err := newApp(c, zap.NewNop(), nil, false)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a, downloads
}

func TestChatLoop(t *testing.T) {
	a, downloads := newTestApp(t)

	doc := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(doc, []byte("inventory oscillates"), 0o644))

	script := strings.Join([]string{
		"What drives the oscillation?",
		"/upload " + doc,
		"/zoom in",
		"/zoom sideways",
		"/export",
		"/quit",
		"never reached",
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), a, strings.NewReader(script), &out))

	text := out.String()
	assert.Contains(t, text, "loops everywhere")
	assert.Contains(t, text, "Uploaded notes.txt")
	assert.Contains(t, text, "Systems map ready (image/png")
	assert.Contains(t, text, "Zoom 1.5x")
	assert.Contains(t, text, "error: usage: /zoom in|out|reset")
	assert.Contains(t, text, "Exported via download")

	_, err := os.Stat(filepath.Join(downloads, services.DownloadFilename))
	assert.NoError(t, err)
	assert.Len(t, a.state.Conversation(), 2)
}

func TestParseLegacyArgs(t *testing.T) {
	req, err := parseLegacyArgs([]string{"demand, backlog,", "demand>backlog:increases", "backlog>demand"})
	require.NoError(t, err)
	assert.Equal(t, []string{"demand", "backlog"}, req.Elements)
	assert.Equal(t, []models.Relationship{
		{Source: "demand", Target: "backlog", Type: "increases"},
		{Source: "backlog", Target: "demand", Type: ""},
	}, req.Relationships)

	_, err = parseLegacyArgs(nil)
	assert.Error(t, err)
	_, err = parseLegacyArgs([]string{"a", "nope"})
	assert.Error(t, err)
}

func TestLastAssistant(t *testing.T) {
	assert.Equal(t, "", lastAssistant(nil))
	assert.Equal(t, "b", lastAssistant([]models.Message{
		{Role: models.RoleAssistant, Content: "a"},
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "b"},
		{Role: models.RoleUser, Content: "pending"},
	}))
}
