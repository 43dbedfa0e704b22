package services

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"systemsmap-client/internal/models"
)

// FileExtractService turns PDF and DOCX uploads into plain text. The
// backend reads every uploaded file as UTF-8, so binary formats are
// converted on this side.
type FileExtractService struct {
	enabled bool
	logger  *zap.Logger
}

func NewFileExtractService(enabled bool, logger *zap.Logger) *FileExtractService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileExtractService{enabled: enabled, logger: logger}
}

// Prepare returns the files to send. The display name is always kept; only
// the bytes and content type change. A file that cannot be converted is
// sent as-is.
func (s *FileExtractService) Prepare(files []models.UploadFile) []models.UploadFile {
	out := make([]models.UploadFile, 0, len(files))
	for _, f := range files {
		if f.ContentType == "" {
			f.ContentType = detectContentType(f)
		}
		if !s.enabled {
			out = append(out, f)
			continue
		}

		text, converted, err := s.ExtractText(f.Name, f.Data)
		if err != nil {
			s.logger.Warn("text extraction failed, sending original bytes",
				zap.String("file", f.Name),
				zap.Error(err))
			out = append(out, f)
			continue
		}
		if converted {
			f.Data = []byte(text)
			f.ContentType = "text/plain; charset=utf-8"
		}
		out = append(out, f)
	}
	return out
}

// ExtractText converts data by extension. converted is false for formats
// that are sent unchanged.
func (s *FileExtractService) ExtractText(name string, data []byte) (text string, converted bool, err error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text, err = s.extractPDF(data)
	case ".docx":
		text, err = s.extractDOCX(data)
	case ".txt", ".md", ".csv":
		text, err = s.extractTXT(data)
		return text, false, err
	default:
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (s *FileExtractService) extractTXT(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text file is not valid UTF-8")
	}

	text := normalizeExtractedText(string(data))
	if text == "" {
		return "", fmt.Errorf("text file is empty")
	}

	return text, nil
}

func (s *FileExtractService) extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	text := normalizeExtractedText(b.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text found in pdf")
	}

	return text, nil
}

func (s *FileExtractService) extractDOCX(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var documentXML []byte
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return "", err
			}
			documentXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return "", err
			}
			break
		}
	}

	if len(documentXML) == 0 {
		return "", fmt.Errorf("docx document.xml not found")
	}

	text := normalizeExtractedText(stripDOCXML(documentXML))
	if text == "" {
		return "", fmt.Errorf("no extractable text found in docx")
	}

	return text, nil
}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)

func stripDOCXML(src []byte) string {
	s := string(src)

	// DOCX paragraphs and line breaks
	s = strings.ReplaceAll(s, "</w:p>", "\n")
	s = strings.ReplaceAll(s, "<w:br/>", "\n")
	s = strings.ReplaceAll(s, "<w:br />", "\n")
	s = strings.ReplaceAll(s, "<w:tab/>", "\t")

	s = xmlTagPattern.ReplaceAllString(s, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
	)
	return replacer.Replace(s)
}

func normalizeExtractedText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	buf := bytes.Buffer{}

	emptyCount := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			emptyCount++
			if emptyCount > 1 {
				continue
			}
			buf.WriteString("\n")
			continue
		}
		emptyCount = 0
		buf.WriteString(trimmed)
		buf.WriteString("\n")
	}

	return strings.TrimSpace(buf.String())
}

func detectContentType(f models.UploadFile) string {
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	}
	return http.DetectContentType(f.Data)
}
