package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"systemsmap-client/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// pngBytes starts with the PNG signature so content sniffing accepts it.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

var errBackendDown = errors.New("connection refused")

type fakeBackend struct {
	mu sync.Mutex

	startCalls   int
	startID      string
	startErr     error
	startRelease chan struct{}

	analyzeCalls   int
	analyzeReqs    []models.AnalyzeRequest
	analyzeResp    *models.AnalyzeResponse
	analyzeErr     error
	analyzeEntered chan struct{}
	analyzeRelease chan struct{}

	uploadCalls   int
	uploadFiles   [][]models.UploadFile
	uploadResp    *models.UploadResponse
	uploadErr     error
	uploadEntered chan struct{}
	uploadRelease chan struct{}

	fetchCalls int
	fetchData  []byte
	fetchErr   error

	legacyCalls int
	legacyURL   string
	legacyErr   error
}

func (f *fakeBackend) StartConversation(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.startCalls++
	release := f.startRelease
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startID, f.startErr
}

func (f *fakeBackend) Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error) {
	f.mu.Lock()
	f.analyzeCalls++
	f.analyzeReqs = append(f.analyzeReqs, req)
	entered, release := f.analyzeEntered, f.analyzeRelease
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analyzeResp, f.analyzeErr
}

func (f *fakeBackend) UploadDocuments(ctx context.Context, files []models.UploadFile) (*models.UploadResponse, error) {
	f.mu.Lock()
	f.uploadCalls++
	f.uploadFiles = append(f.uploadFiles, files)
	entered, release := f.uploadEntered, f.uploadRelease
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploadResp, f.uploadErr
}

func (f *fakeBackend) UploadDocument(ctx context.Context, file models.UploadFile) (*models.UploadResponse, error) {
	return f.UploadDocuments(ctx, []models.UploadFile{file})
}

func (f *fakeBackend) FetchImage(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	return f.fetchData, f.fetchErr
}

func (f *fakeBackend) CreateSystemsMap(ctx context.Context, req models.SystemsMapRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.legacyCalls++
	return f.legacyURL, f.legacyErr
}

func (f *fakeBackend) calls() (start, analyze, upload, fetch int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls, f.analyzeCalls, f.uploadCalls, f.fetchCalls
}

// manualScheduler holds jobs until the test runs them.
type manualScheduler struct {
	mu   sync.Mutex
	jobs []func(ctx context.Context)
}

func (s *manualScheduler) Submit(name string, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, fn)
	return true
}

func (s *manualScheduler) run(i int) {
	s.mu.Lock()
	job := s.jobs[i]
	s.mu.Unlock()
	job(context.Background())
}

type rejectingScheduler struct{}

func (rejectingScheduler) Submit(string, func(ctx context.Context)) bool { return false }

type recordingSink struct {
	mu    sync.Mutex
	saved [][]byte
	err   error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Save(ctx context.Context, data []byte, mediaType string) (*models.ExportOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.saved = append(s.saved, data)
	return &models.ExportOutcome{Sink: "recording", Bytes: len(data)}, nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func notificationKinds(ns []models.Notification) []models.NotificationKind {
	out := make([]models.NotificationKind, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Kind)
	}
	return out
}
