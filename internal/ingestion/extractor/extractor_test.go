package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veridocai/veridoc-backend/internal/clients/gcp"
	"github.com/veridocai/veridoc-backend/internal/platform/doctools"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

type fakeTools struct {
	pageCount    int
	pageText     map[int]string
	pageTextErr  error
	wholeText    string
	renderErr    error
	renderedPage int
	convertedPDF string
}

func (f *fakeTools) AssertReady(ctx context.Context) error { return nil }

func (f *fakeTools) ConvertOfficeToPDF(ctx context.Context, inputPath string, outDir string) (string, error) {
	if f.convertedPDF == "" {
		return "", fmt.Errorf("soffice unavailable")
	}
	return f.convertedPDF, nil
}

func (f *fakeTools) CountPDFPages(ctx context.Context, pdfPath string) (int, error) {
	if f.pageCount <= 0 {
		return 0, fmt.Errorf("pdfinfo failed")
	}
	return f.pageCount, nil
}

func (f *fakeTools) ExtractPDFPageText(ctx context.Context, pdfPath string, page int) (string, error) {
	if f.pageTextErr != nil {
		return "", f.pageTextErr
	}
	return f.pageText[page], nil
}

func (f *fakeTools) ExtractPDFText(ctx context.Context, pdfPath string) (string, error) {
	return f.wholeText, nil
}

func (f *fakeTools) RenderPDFPage(ctx context.Context, pdfPath string, outDir string, page int, opts doctools.PDFRenderOptions) (string, error) {
	if f.renderErr != nil {
		return "", f.renderErr
	}
	f.renderedPage = page
	out := filepath.Join(outDir, fmt.Sprintf("page-%d.png", page))
	if err := os.WriteFile(out, []byte("png-bytes"), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

func (f *fakeTools) GenerateThumbnail(ctx context.Context, pdfPath string, outPath string) (string, error) {
	return outPath, nil
}

func (f *fakeTools) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	return "", func() {}, fmt.Errorf("not used")
}

type fakeOCR struct {
	text  string
	err   error
	calls int
	mimes []string
}

func (f *fakeOCR) OCRImageBytes(ctx context.Context, img []byte, mimeType string) (*gcp.VisionOCRResult, error) {
	f.calls++
	f.mimes = append(f.mimes, mimeType)
	if f.err != nil {
		return nil, f.err
	}
	return &gcp.VisionOCRResult{Provider: "gcp_vision", MimeType: mimeType, PrimaryText: f.text}, nil
}

func newTestExtractor(t *testing.T, tools doctools.Tools, ocr OCREngine) *Service {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(log, tools, ocr)
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func writeFakePDF(t *testing.T, name string) string {
	t.Helper()
	return writeTempFile(t, name, []byte("%PDF-1.7\nstub body"))
}

func writeZip(t *testing.T, name string, entries map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for entry, body := range entries {
		w, err := zw.Create(entry)
		if err != nil {
			t.Fatalf("zip entry %s: %v", entry, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", entry, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return p
}

func TestExtractUnsupportedTypeRejectedBeforeRead(t *testing.T) {
	svc := newTestExtractor(t, &fakeTools{}, nil)

	_, err := svc.Extract(context.Background(), "/does/not/exist.zip", "zip")
	var unsupported *UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}
	if unsupported.FileType != "zip" {
		t.Fatalf("expected file type zip, got %q", unsupported.FileType)
	}
}

func TestExtractPlainTextEstimatesPages(t *testing.T) {
	words := make([]string, 1200)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	path := writeTempFile(t, "notes.txt", []byte(strings.Join(words, " ")))

	svc := newTestExtractor(t, &fakeTools{}, nil)
	res, err := svc.Extract(context.Background(), path, "txt")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.WordCount != 1200 {
		t.Fatalf("expected 1200 words, got %d", res.WordCount)
	}
	if res.PageCount != 2 {
		t.Fatalf("expected estimated page count 2, got %d", res.PageCount)
	}
	if res.RequiresOCR {
		t.Fatalf("plain text should not require OCR")
	}
	if len(res.Pages) != 1 || res.Pages[0].Method != MethodExtraction {
		t.Fatalf("expected one extraction page, got %+v", res.Pages)
	}
}

func TestExtractPlainTextEmptyFileFails(t *testing.T) {
	path := writeTempFile(t, "empty.txt", []byte("   \n"))

	svc := newTestExtractor(t, &fakeTools{}, nil)
	_, err := svc.Extract(context.Background(), path, "txt")
	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extractionErr.Path != path {
		t.Fatalf("expected path %q in error, got %q", path, extractionErr.Path)
	}
}

func TestExtractPDFMixedTextAndScannedPages(t *testing.T) {
	longText := strings.Repeat("The parties agree to the following terms. ", 5)
	tools := &fakeTools{
		pageCount: 3,
		pageText: map[int]string{
			1: longText,
			2: "  ",
			3: longText,
		},
	}
	ocr := &fakeOCR{text: "Recovered scanned page text from the second page."}
	svc := newTestExtractor(t, tools, ocr)

	res, err := svc.Extract(context.Background(), writeFakePDF(t, "contract.pdf"), "pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.PageCount != 3 {
		t.Fatalf("expected page count 3, got %d", res.PageCount)
	}
	if !res.RequiresOCR {
		t.Fatalf("expected requires_ocr for a scanned page")
	}
	if len(res.Pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(res.Pages))
	}
	if res.Pages[0].Method != MethodExtraction || res.Pages[2].Method != MethodExtraction {
		t.Fatalf("expected text-layer pages to use extraction, got %+v", res.Pages)
	}
	if res.Pages[1].Method != MethodOCR {
		t.Fatalf("expected scanned page to use ocr, got %q", res.Pages[1].Method)
	}
	if res.Pages[1].Text != ocr.text {
		t.Fatalf("expected recognized text on page 2, got %q", res.Pages[1].Text)
	}
	if tools.renderedPage != 2 {
		t.Fatalf("expected page 2 rendered for OCR, got %d", tools.renderedPage)
	}
	if !strings.Contains(res.Text, "\n\n") {
		t.Fatalf("expected pages joined with blank line")
	}
}

func TestExtractPDFOCRFailureDowngradesPage(t *testing.T) {
	tools := &fakeTools{
		pageCount: 2,
		pageText: map[int]string{
			1: strings.Repeat("Readable text layer content for page one. ", 3),
			2: "",
		},
	}
	ocr := &fakeOCR{err: fmt.Errorf("vision unavailable")}
	svc := newTestExtractor(t, tools, ocr)

	res, err := svc.Extract(context.Background(), writeFakePDF(t, "scan.pdf"), "pdf")
	if err != nil {
		t.Fatalf("ocr failure should not abort extraction: %v", err)
	}
	if !res.RequiresOCR {
		t.Fatalf("expected requires_ocr")
	}
	if res.Pages[1].Method != MethodOCRNeeded {
		t.Fatalf("expected ocr_needed page, got %q", res.Pages[1].Method)
	}
	if res.Pages[1].Text != "" {
		t.Fatalf("downgraded page should carry no text, got %q", res.Pages[1].Text)
	}
}

func TestExtractPDFWithoutOCREngineMarksPagesNeeded(t *testing.T) {
	tools := &fakeTools{
		pageCount: 1,
		pageText:  map[int]string{1: ""},
	}
	svc := newTestExtractor(t, tools, nil)

	res, err := svc.Extract(context.Background(), writeFakePDF(t, "scan.pdf"), "pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Pages[0].Method != MethodOCRNeeded {
		t.Fatalf("expected ocr_needed without engine, got %q", res.Pages[0].Method)
	}
}

func TestExtractPDFRejectsNonPDFPayload(t *testing.T) {
	longText := strings.Repeat("The parties agree to the following terms. ", 5)
	svc := newTestExtractor(t, &fakeTools{pageCount: 1, pageText: map[int]string{1: longText}}, nil)

	path := writeTempFile(t, "renamed.pdf", []byte("this is plain text, not a pdf"))
	_, err := svc.Extract(context.Background(), path, "pdf")
	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected ExtractionError for non-pdf payload, got %v", err)
	}
	if !strings.Contains(err.Error(), "PDF header") {
		t.Fatalf("expected header mismatch error, got %v", err)
	}
}

func TestExtractPDFCountFailureIsExtractionError(t *testing.T) {
	svc := newTestExtractor(t, &fakeTools{pageCount: 0}, nil)

	_, err := svc.Extract(context.Background(), writeFakePDF(t, "broken.pdf"), "pdf")
	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestExtractEmailPrefersPlainPart(t *testing.T) {
	raw := strings.Join([]string{
		"From: counsel@example.com",
		"To: client@example.com",
		"Subject: Settlement terms",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"The settlement amount is 50,000 dollars.",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><body><p>The settlement amount is <b>50,000</b> dollars.</p></body></html>",
		"--b1--",
		"",
	}, "\r\n")
	path := writeTempFile(t, "thread.eml", []byte(raw))

	svc := newTestExtractor(t, &fakeTools{}, nil)
	res, err := svc.Extract(context.Background(), path, "eml")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(res.Text, "Subject: Settlement terms") {
		t.Fatalf("expected subject header in text, got %q", res.Text)
	}
	if !strings.Contains(res.Text, "The settlement amount is 50,000 dollars.") {
		t.Fatalf("expected plain body, got %q", res.Text)
	}
	if strings.Contains(res.Text, "<b>") {
		t.Fatalf("html markup leaked into text: %q", res.Text)
	}
	if len(res.Pages) != 1 {
		t.Fatalf("expected single logical page, got %d", len(res.Pages))
	}
}

func TestExtractEmailHTMLOnlyFallsBackToStrippedMarkup(t *testing.T) {
	raw := strings.Join([]string{
		"From: a@example.com",
		"Subject: Notice",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<div>Hearing moved to <strong>March 3</strong>.</div>",
		"",
	}, "\r\n")
	path := writeTempFile(t, "notice.eml", []byte(raw))

	svc := newTestExtractor(t, &fakeTools{}, nil)
	res, err := svc.Extract(context.Background(), path, "eml")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(res.Text, "Hearing moved to March 3") {
		t.Fatalf("expected stripped html body, got %q", res.Text)
	}
}

func TestExtractPresentationOnePagePerSlideInDeckOrder(t *testing.T) {
	path := writeZip(t, "deck.pptx", map[string]string{
		"ppt/slides/slide1.xml":  `<p:sld><p:txBody><a:t>Opening argument</a:t></p:txBody></p:sld>`,
		"ppt/slides/slide2.xml":  `<p:sld><p:txBody><a:t>Key evidence</a:t></p:txBody></p:sld>`,
		"ppt/slides/slide10.xml": `<p:sld><p:txBody><a:t>Closing summary</a:t></p:txBody></p:sld>`,
		"ppt/presentation.xml":   `<p:presentation/>`,
	})

	svc := newTestExtractor(t, &fakeTools{}, nil)
	res, err := svc.Extract(context.Background(), path, "pptx")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.PageCount != 3 || len(res.Pages) != 3 {
		t.Fatalf("expected 3 slide pages, got count=%d pages=%d", res.PageCount, len(res.Pages))
	}
	if res.Pages[0].Text != "Opening argument" {
		t.Fatalf("unexpected slide 1 text %q", res.Pages[0].Text)
	}
	if res.Pages[2].Text != "Closing summary" {
		t.Fatalf("slides not in numeric order, page 3 is %q", res.Pages[2].Text)
	}
}

func TestExtractSpreadsheetResolvesSharedStrings(t *testing.T) {
	path := writeZip(t, "exhibits.xlsx", map[string]string{
		"xl/sharedStrings.xml": `<sst><si><t>Exhibit</t></si><si><t>Amount</t></si><si><t>Invoice A</t></si></sst>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData>` +
			`<row><c t="s"><v>0</v></c><c t="s"><v>1</v></c></row>` +
			`<row><c t="s"><v>2</v></c><c><v>1250</v></c></row>` +
			`</sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<worksheet><sheetData>` +
			`<row><c t="inlineStr"><is><t>Second sheet note</t></is></c></row>` +
			`</sheetData></worksheet>`,
	})

	svc := newTestExtractor(t, &fakeTools{}, nil)
	res, err := svc.Extract(context.Background(), path, "xlsx")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.PageCount != 2 {
		t.Fatalf("expected one page per sheet, got %d", res.PageCount)
	}
	if !strings.Contains(res.Pages[0].Text, "Invoice A 1250") {
		t.Fatalf("expected resolved shared strings with numeric cell, got %q", res.Pages[0].Text)
	}
	if !strings.Contains(res.Pages[1].Text, "Second sheet note") {
		t.Fatalf("expected inline string on sheet 2, got %q", res.Pages[1].Text)
	}
}

func TestExtractEbookOnePagePerContentItem(t *testing.T) {
	path := writeZip(t, "handbook.epub", map[string]string{
		"OEBPS/ch01.xhtml": `<html><body><h1>Chapter 1</h1><p>Duties of counsel.</p></body></html>`,
		"OEBPS/ch02.xhtml": `<html><body><h1>Chapter 2</h1><p>Filing deadlines.</p></body></html>`,
		"OEBPS/cover.html": `<html><body></body></html>`,
		"mimetype":         "application/epub+zip",
	})

	svc := newTestExtractor(t, &fakeTools{}, nil)
	res, err := svc.Extract(context.Background(), path, "epub")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.PageCount != 2 {
		t.Fatalf("expected empty cover skipped, got %d pages", res.PageCount)
	}
	if !strings.Contains(res.Pages[0].Text, "Duties of counsel.") {
		t.Fatalf("unexpected chapter 1 text %q", res.Pages[0].Text)
	}
}

func TestExtractXPSReadsGlyphText(t *testing.T) {
	path := writeZip(t, "filing.xps", map[string]string{
		"Documents/1/Pages/1.fpage": `<FixedPage><Glyphs UnicodeString="Motion to dismiss" /></FixedPage>`,
		"Documents/1/Pages/2.fpage": `<FixedPage><Glyphs UnicodeString="Granted in part" /></FixedPage>`,
	})

	svc := newTestExtractor(t, &fakeTools{}, nil)
	res, err := svc.Extract(context.Background(), path, "xps")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.PageCount != 2 {
		t.Fatalf("expected 2 fixed pages, got %d", res.PageCount)
	}
	if res.Pages[0].Text != "Motion to dismiss" {
		t.Fatalf("unexpected page 1 text %q", res.Pages[0].Text)
	}
	if res.RequiresOCR {
		t.Fatalf("glyph text should not require OCR")
	}
}

func TestExtractXPSWithoutTextFallsBackToOCR(t *testing.T) {
	path := writeZip(t, "scan.xps", map[string]string{
		"Documents/1/Pages/1.fpage": `<FixedPage><Path Data="M 0,0" /></FixedPage>`,
	})
	ocr := &fakeOCR{text: "Scanned fixed document text."}

	svc := newTestExtractor(t, &fakeTools{}, ocr)
	res, err := svc.Extract(context.Background(), path, "xps")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !res.RequiresOCR {
		t.Fatalf("expected OCR fallback to set requires_ocr")
	}
	if ocr.calls != 1 {
		t.Fatalf("expected one whole-file OCR call, got %d", ocr.calls)
	}
	if res.Pages[0].Method != MethodOCR || res.Pages[0].Text != ocr.text {
		t.Fatalf("unexpected fallback page %+v", res.Pages[0])
	}
}

func TestExtractImageAlwaysRequiresOCR(t *testing.T) {
	path := writeTempFile(t, "exhibit.png", []byte("fake-png-bytes"))
	ocr := &fakeOCR{text: "Photographed receipt total 42.00"}

	svc := newTestExtractor(t, &fakeTools{}, ocr)
	res, err := svc.Extract(context.Background(), path, "png")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !res.RequiresOCR {
		t.Fatalf("image extraction must require OCR")
	}
	if res.PageCount != 1 || res.Pages[0].Method != MethodOCR {
		t.Fatalf("expected single ocr page, got %+v", res.Pages)
	}
	if len(ocr.mimes) != 1 || ocr.mimes[0] != "image/png" {
		t.Fatalf("expected image/png mime, got %v", ocr.mimes)
	}
}

func TestExtractImageOCRFailureKeepsDocument(t *testing.T) {
	path := writeTempFile(t, "exhibit.jpg", []byte("fake-jpg-bytes"))
	ocr := &fakeOCR{err: fmt.Errorf("quota exceeded")}

	svc := newTestExtractor(t, &fakeTools{}, ocr)
	res, err := svc.Extract(context.Background(), path, "jpg")
	if err != nil {
		t.Fatalf("ocr failure should not abort image extraction: %v", err)
	}
	if res.Pages[0].Method != MethodOCRNeeded {
		t.Fatalf("expected ocr_needed page, got %q", res.Pages[0].Method)
	}
	if !res.RequiresOCR {
		t.Fatalf("expected requires_ocr")
	}
}
