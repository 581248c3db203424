// Package extractor converts raw uploaded files into page-segmented
// plain text, flagging pages that needed optical recognition.
package extractor

import (
	"context"
	"strings"

	"github.com/veridocai/veridoc-backend/internal/clients/gcp"
	"github.com/veridocai/veridoc-backend/internal/platform/doctools"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

const (
	// MethodExtraction means the text layer was read directly.
	MethodExtraction = "extraction"
	// MethodOCR means the page was rasterized and recognized.
	MethodOCR = "ocr"
	// MethodOCRNeeded marks a scanned page whose recognition failed or
	// was unavailable. The page text stays empty; ingestion continues.
	MethodOCRNeeded = "ocr_needed"
)

// Pages with fewer extracted characters than this are treated as
// scanned and routed through OCR.
const minPageTextChars = 50

// Flowed formats without physical pages estimate one page per this
// many words.
const wordsPerEstimatedPage = 500

// Page is one ordered text region of an extracted document. Numbers
// are 1-based and follow emission order, not necessarily physical
// pagination.
type Page struct {
	Number int
	Text   string
	Method string
}

// Result is the full extraction output for one file.
type Result struct {
	Text        string
	PageCount   int
	WordCount   int
	RequiresOCR bool
	Pages       []Page
}

// OCREngine recognizes text in a rendered page or image. gcp.Vision
// satisfies it; a nil engine downgrades scanned pages to ocr_needed.
type OCREngine interface {
	OCRImageBytes(ctx context.Context, img []byte, mimeType string) (*gcp.VisionOCRResult, error)
}

type Service struct {
	log   *logger.Logger
	tools doctools.Tools
	ocr   OCREngine
}

func New(log *logger.Logger, tools doctools.Tools, ocr OCREngine) *Service {
	return &Service{
		log:   log.With("component", "Extractor"),
		tools: tools,
		ocr:   ocr,
	}
}

// Extract dispatches on the declared file type. Unknown types are
// rejected before the file is touched.
func (s *Service) Extract(ctx context.Context, filePath string, declaredType string) (*Result, error) {
	fileType := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(declaredType, ".")))

	switch fileType {
	case "pdf":
		return s.extractPDF(ctx, filePath)
	case "docx", "doc", "odt", "rtf":
		return s.extractOfficeDoc(ctx, filePath)
	case "txt", "csv", "md", "log":
		return s.extractPlainText(filePath)
	case "eml":
		return s.extractEmail(filePath)
	case "xlsx", "ods":
		return s.extractSpreadsheet(ctx, filePath, fileType)
	case "pptx":
		return s.extractPresentation(filePath)
	case "epub":
		return s.extractEbook(filePath)
	case "xps", "oxps":
		return s.extractXPS(ctx, filePath)
	case "jpg", "jpeg", "png", "gif", "bmp", "webp", "tiff", "tif":
		return s.extractImage(ctx, filePath, fileType)
	default:
		return nil, &UnsupportedFormatError{FileType: fileType}
	}
}

// finalize joins page texts and derives the aggregate fields. Page
// texts are joined with a blank line so paragraph boundaries survive
// and downstream page mapping can use a fixed 2-char separator.
func finalize(pages []Page, pageCount int, requiresOCR bool) *Result {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	text := strings.Join(parts, "\n\n")

	wordCount := len(strings.Fields(text))
	if pageCount <= 0 {
		pageCount = estimatePageCount(wordCount)
	}

	return &Result{
		Text:        text,
		PageCount:   pageCount,
		WordCount:   wordCount,
		RequiresOCR: requiresOCR,
		Pages:       pages,
	}
}

func estimatePageCount(wordCount int) int {
	n := wordCount / wordsPerEstimatedPage
	if n < 1 {
		return 1
	}
	return n
}

// singlePage wraps one logical text region as a whole-document result
// with an estimated page count.
func singlePage(text string) *Result {
	text = sanitizeUTF8(normalizeNewlines(text))
	return finalize([]Page{{Number: 1, Text: strings.TrimSpace(text), Method: MethodExtraction}}, 0, false)
}
