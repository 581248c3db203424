package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/veridocai/veridoc-backend/internal/platform/doctools"
)

func (s *Service) extractPDF(ctx context.Context, pdfPath string) (*Result, error) {
	if err := checkPDFHeader(pdfPath); err != nil {
		return nil, extractErr(pdfPath, err)
	}

	pageCount, err := s.tools.CountPDFPages(ctx, pdfPath)
	if err != nil {
		return nil, extractErr(pdfPath, fmt.Errorf("count pages: %w", err))
	}
	if pageCount <= 0 {
		return nil, extractErr(pdfPath, fmt.Errorf("pdf reports %d pages", pageCount))
	}

	pages := make([]Page, 0, pageCount)
	requiresOCR := false

	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text, err := s.tools.ExtractPDFPageText(ctx, pdfPath, pageNum)
		if err != nil {
			return nil, extractErr(pdfPath, fmt.Errorf("page %d text: %w", pageNum, err))
		}
		text = sanitizeUTF8(normalizeNewlines(text))

		if len(strings.TrimSpace(text)) >= minPageTextChars {
			pages = append(pages, Page{Number: pageNum, Text: strings.TrimSpace(text), Method: MethodExtraction})
			continue
		}

		// Near-empty text layer: treat the page as scanned.
		requiresOCR = true
		ocrText, ok := s.ocrPDFPage(ctx, pdfPath, pageNum)
		if ok {
			pages = append(pages, Page{Number: pageNum, Text: ocrText, Method: MethodOCR})
		} else {
			pages = append(pages, Page{Number: pageNum, Text: "", Method: MethodOCRNeeded})
		}
	}

	return finalize(pages, pageCount, requiresOCR), nil
}

// ocrPDFPage renders one page and runs it through the OCR engine.
// Failures are logged and reported as not-ok; the caller downgrades
// the page rather than aborting the document.
func (s *Service) ocrPDFPage(ctx context.Context, pdfPath string, pageNum int) (string, bool) {
	if s.ocr == nil {
		s.log.Warn("OCR engine not configured; marking page ocr_needed",
			"pdf_path", pdfPath,
			"page", pageNum,
		)
		return "", false
	}

	tmpDir, err := os.MkdirTemp("", "vd_ocr_*")
	if err != nil {
		s.log.Warn("OCR temp dir failed", "page", pageNum, "error", err)
		return "", false
	}
	defer os.RemoveAll(tmpDir)

	imgPath, err := s.tools.RenderPDFPage(ctx, pdfPath, tmpDir, pageNum, doctools.PDFRenderOptions{
		DPI:    300,
		Format: "png",
	})
	if err != nil {
		s.log.Warn("OCR page render failed", "pdf_path", pdfPath, "page", pageNum, "error", err)
		return "", false
	}

	img, err := os.ReadFile(imgPath)
	if err != nil {
		s.log.Warn("OCR page image read failed", "page", pageNum, "error", err)
		return "", false
	}

	res, err := s.ocr.OCRImageBytes(ctx, img, "image/png")
	if err != nil {
		s.log.Warn("OCR recognition failed", "pdf_path", pdfPath, "page", pageNum, "error", err)
		return "", false
	}
	text := strings.TrimSpace(res.PrimaryText)
	if text == "" {
		return "", false
	}
	return sanitizeUTF8(text), true
}

// extractOfficeDoc converts word-processor formats to PDF, then reads
// the text layer in one pass. The converted page structure is not kept;
// flowed formats report an estimated page count.
func (s *Service) extractOfficeDoc(ctx context.Context, filePath string) (*Result, error) {
	tmpDir, err := os.MkdirTemp("", "vd_convert_*")
	if err != nil {
		return nil, extractErr(filePath, fmt.Errorf("temp dir: %w", err))
	}
	defer os.RemoveAll(tmpDir)

	pdfPath, err := s.tools.ConvertOfficeToPDF(ctx, filePath, tmpDir)
	if err != nil {
		return nil, extractErr(filePath, fmt.Errorf("office convert: %w", err))
	}

	text, err := s.tools.ExtractPDFText(ctx, pdfPath)
	if err != nil {
		return nil, extractErr(filePath, fmt.Errorf("converted pdf text: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		return nil, extractErr(filePath, fmt.Errorf("converted document produced no text"))
	}
	return singlePage(text), nil
}
