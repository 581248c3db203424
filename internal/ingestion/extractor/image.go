package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"
)

var imageMimeTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"webp": "image/webp",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"xps":  "application/octet-stream",
}

// extractImage runs the whole file through OCR as a single page.
// Images always require OCR; when the engine is missing or fails the
// document keeps one empty ocr_needed page instead of erroring.
func (s *Service) extractImage(ctx context.Context, filePath string, fileType string) (*Result, error) {
	img, err := os.ReadFile(filePath)
	if err != nil {
		return nil, extractErr(filePath, err)
	}
	if len(img) == 0 {
		return nil, extractErr(filePath, fmt.Errorf("file is empty"))
	}

	mimeType := imageMimeTypes[fileType]
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if s.ocr == nil {
		s.log.Warn("OCR engine not configured; image text unavailable", "path", filePath)
		return finalize([]Page{{Number: 1, Text: "", Method: MethodOCRNeeded}}, 1, true), nil
	}

	res, err := s.ocr.OCRImageBytes(ctx, img, mimeType)
	if err != nil {
		s.log.Warn("image OCR failed", "path", filePath, "error", err)
		return finalize([]Page{{Number: 1, Text: "", Method: MethodOCRNeeded}}, 1, true), nil
	}

	text := strings.TrimSpace(sanitizeUTF8(res.PrimaryText))
	if text == "" {
		return finalize([]Page{{Number: 1, Text: "", Method: MethodOCRNeeded}}, 1, true), nil
	}
	return finalize([]Page{{Number: 1, Text: text, Method: MethodOCR}}, 1, true), nil
}
