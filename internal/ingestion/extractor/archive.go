package extractor

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// extractSpreadsheet reads workbook cell text from the zip container,
// one page per sheet.
func (s *Service) extractSpreadsheet(ctx context.Context, filePath string, fileType string) (*Result, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, extractErr(filePath, fmt.Errorf("open archive: %w", err))
	}
	defer zr.Close()

	var pages []Page
	if fileType == "xlsx" {
		pages, err = xlsxSheetPages(&zr.Reader)
	} else {
		pages, err = odsTablePages(&zr.Reader)
	}
	if err != nil {
		return nil, extractErr(filePath, err)
	}
	if len(pages) == 0 {
		return nil, extractErr(filePath, fmt.Errorf("workbook has no readable sheets"))
	}
	return finalize(pages, len(pages), false), nil
}

func xlsxSheetPages(zr *zip.Reader) ([]Page, error) {
	shared, err := xlsxSharedStrings(zr)
	if err != nil {
		return nil, err
	}

	sheetRe := regexp.MustCompile(`^xl/worksheets/sheet(\d+)\.xml$`)
	type sheetFile struct {
		order int
		file  *zip.File
	}
	sheets := []sheetFile{}
	for _, f := range zr.File {
		m := sheetRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		sheets = append(sheets, sheetFile{order: n, file: f})
	}
	sort.Slice(sheets, func(i, j int) bool { return sheets[i].order < sheets[j].order })

	pages := make([]Page, 0, len(sheets))
	for i, sf := range sheets {
		rc, err := sf.file.Open()
		if err != nil {
			return nil, fmt.Errorf("open sheet %s: %w", sf.file.Name, err)
		}
		text, err := xlsxSheetText(rc, shared)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse sheet %s: %w", sf.file.Name, err)
		}
		pages = append(pages, Page{
			Number: i + 1,
			Text:   sanitizeUTF8(text),
			Method: MethodExtraction,
		})
	}
	return pages, nil
}

func xlsxSharedStrings(zr *zip.Reader) ([]string, error) {
	var file *zip.File
	for _, f := range zr.File {
		if f.Name == "xl/sharedStrings.xml" {
			file = f
			break
		}
	}
	if file == nil {
		return nil, nil
	}
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open sharedStrings: %w", err)
	}
	defer rc.Close()

	var out []string
	dec := xml.NewDecoder(rc)
	var current strings.Builder
	depth := 0
	inSI := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse sharedStrings: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "si" && depth == 1 {
				inSI = true
				current.Reset()
			}
			depth++
		case xml.EndElement:
			depth--
			if t.Name.Local == "si" && depth == 1 {
				inSI = false
				out = append(out, current.String())
			}
		case xml.CharData:
			if inSI {
				current.Write(t)
			}
		}
	}
	return out, nil
}

// xlsxSheetText walks one worksheet and renders rows as lines with
// cell values separated by single spaces. Shared-string cells (t="s")
// resolve through the workbook shared-string table.
func xlsxSheetText(r io.Reader, shared []string) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		lines    []string
		row      []string
		cellType string
		inValue  bool
		value    strings.Builder
	)

	flushCell := func() {
		raw := strings.TrimSpace(value.String())
		value.Reset()
		if raw == "" {
			return
		}
		if cellType == "s" {
			idx, err := strconv.Atoi(raw)
			if err == nil && idx >= 0 && idx < len(shared) {
				raw = strings.TrimSpace(shared[idx])
			}
		}
		if raw != "" {
			row = append(row, raw)
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "row":
				row = row[:0]
			case "c":
				cellType = ""
				for _, attr := range t.Attr {
					if attr.Name.Local == "t" {
						cellType = attr.Value
					}
				}
			case "v", "t":
				inValue = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "row":
				if len(row) > 0 {
					lines = append(lines, strings.Join(row, " "))
				}
			case "c":
				flushCell()
			case "v", "t":
				inValue = false
			}
		case xml.CharData:
			if inValue {
				value.Write(t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

// odsTablePages walks content.xml, one page per table element.
func odsTablePages(zr *zip.Reader) ([]Page, error) {
	var file *zip.File
	for _, f := range zr.File {
		if f.Name == "content.xml" {
			file = f
			break
		}
	}
	if file == nil {
		return nil, fmt.Errorf("content.xml not found in archive")
	}
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open content.xml: %w", err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var pages []Page
	var current strings.Builder
	tableDepth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse content.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "table" {
				if tableDepth == 0 {
					current.Reset()
				}
				tableDepth++
			}
		case xml.EndElement:
			if t.Name.Local == "table" {
				tableDepth--
				if tableDepth == 0 {
					text := strings.TrimSpace(current.String())
					pages = append(pages, Page{
						Number: len(pages) + 1,
						Text:   sanitizeUTF8(text),
						Method: MethodExtraction,
					})
				}
			}
		case xml.CharData:
			if tableDepth > 0 {
				chunk := strings.TrimSpace(string(t))
				if chunk != "" {
					if current.Len() > 0 {
						current.WriteString(" ")
					}
					current.WriteString(chunk)
				}
			}
		}
	}
	return pages, nil
}

// extractPresentation reads slide text, one page per slide in deck
// order.
func (s *Service) extractPresentation(filePath string) (*Result, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, extractErr(filePath, fmt.Errorf("open archive: %w", err))
	}
	defer zr.Close()

	slideRe := regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	type slideFile struct {
		order int
		file  *zip.File
	}
	slides := []slideFile{}
	for _, f := range zr.File {
		m := slideRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slideFile{order: n, file: f})
	}
	if len(slides) == 0 {
		return nil, extractErr(filePath, fmt.Errorf("presentation has no slides"))
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].order < slides[j].order })

	pages := make([]Page, 0, len(slides))
	for i, sf := range slides {
		rc, err := sf.file.Open()
		if err != nil {
			return nil, extractErr(filePath, fmt.Errorf("open slide %s: %w", sf.file.Name, err))
		}
		text, err := xmlTextContent(rc)
		rc.Close()
		if err != nil {
			return nil, extractErr(filePath, fmt.Errorf("parse slide %s: %w", sf.file.Name, err))
		}
		pages = append(pages, Page{
			Number: i + 1,
			Text:   sanitizeUTF8(text),
			Method: MethodExtraction,
		})
	}
	return finalize(pages, len(pages), false), nil
}

// extractEbook reads XHTML content items in path order, one page per
// item. Empty items (covers, nav pages) are skipped.
func (s *Service) extractEbook(filePath string) (*Result, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, extractErr(filePath, fmt.Errorf("open archive: %w", err))
	}
	defer zr.Close()

	items := []*zip.File{}
	for _, f := range zr.File {
		ext := strings.ToLower(path.Ext(f.Name))
		if ext == ".xhtml" || ext == ".html" || ext == ".htm" {
			items = append(items, f)
		}
	}
	if len(items) == 0 {
		return nil, extractErr(filePath, fmt.Errorf("ebook has no content documents"))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	pages := []Page{}
	for _, f := range items {
		rc, err := f.Open()
		if err != nil {
			return nil, extractErr(filePath, fmt.Errorf("open item %s: %w", f.Name, err))
		}
		raw, readErr := io.ReadAll(rc)
		rc.Close()
		if readErr != nil {
			return nil, extractErr(filePath, fmt.Errorf("read item %s: %w", f.Name, readErr))
		}
		text := stripMarkup(string(raw))
		if text == "" {
			continue
		}
		pages = append(pages, Page{
			Number: len(pages) + 1,
			Text:   sanitizeUTF8(text),
			Method: MethodExtraction,
		})
	}
	if len(pages) == 0 {
		return nil, extractErr(filePath, fmt.Errorf("ebook content documents have no text"))
	}
	return finalize(pages, len(pages), false), nil
}

// extractXPS walks fixed-page XML for text. XPS stores glyph text in
// UnicodeString attributes rather than element content. When no text
// nodes are found the whole file falls back to OCR.
func (s *Service) extractXPS(ctx context.Context, filePath string) (*Result, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, extractErr(filePath, fmt.Errorf("open archive: %w", err))
	}

	fpages := []*zip.File{}
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".fpage") {
			fpages = append(fpages, f)
		}
	}
	sort.Slice(fpages, func(i, j int) bool { return fpages[i].Name < fpages[j].Name })

	pages := []Page{}
	for _, f := range fpages {
		rc, err := f.Open()
		if err != nil {
			zr.Close()
			return nil, extractErr(filePath, fmt.Errorf("open page %s: %w", f.Name, err))
		}
		text, err := xmlTextContent(rc)
		rc.Close()
		if err != nil {
			zr.Close()
			return nil, extractErr(filePath, fmt.Errorf("parse page %s: %w", f.Name, err))
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{
			Number: len(pages) + 1,
			Text:   sanitizeUTF8(text),
			Method: MethodExtraction,
		})
	}
	zr.Close()

	if len(pages) > 0 {
		return finalize(pages, len(pages), false), nil
	}
	return s.extractImage(ctx, filePath, "xps")
}

// xmlTextContent collects element text plus UnicodeString attribute
// values in document order.
func xmlTextContent(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder

	write := func(chunk string) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(chunk)
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			for _, attr := range t.Attr {
				if attr.Name.Local == "UnicodeString" {
					write(attr.Value)
				}
			}
		case xml.CharData:
			write(string(t))
		}
	}
	return b.String(), nil
}
