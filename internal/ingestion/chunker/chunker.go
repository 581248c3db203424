// Package chunker splits extracted document text into overlapping
// retrieval segments with exact character spans and resolved page
// numbers.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Chunk is one retrieval segment. StartChar/EndChar are byte offsets
// into the full extracted text; EndChar is exclusive. PageNumber is 0
// when no page mapping was supplied. ParagraphNumber is the 1-based
// ordinal of the paragraph containing StartChar.
type Chunk struct {
	Content         string
	StartChar       int
	EndChar         int
	Index           int
	PageNumber      int
	ParagraphNumber int
}

type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("chunker config error: %s: %s", e.Field, e.Message)
}

func validate(size, overlap int) error {
	if size <= 0 {
		return &ConfigError{Field: "chunk_size", Message: "must be positive"}
	}
	if overlap < 0 {
		return &ConfigError{Field: "chunk_overlap", Message: "must not be negative"}
	}
	if overlap >= size {
		return &ConfigError{Field: "chunk_overlap", Message: "must be smaller than chunk_size"}
	}
	return nil
}

var paragraphBreakRe = regexp.MustCompile(`\n\s*\n`)

type paragraph struct {
	text  string
	start int
	end   int
}

func splitParagraphs(text string) []paragraph {
	breaks := paragraphBreakRe.FindAllStringIndex(text, -1)
	out := make([]paragraph, 0, len(breaks)+1)
	pos := 0
	emit := func(a, b int) {
		for a < b && isSpaceByte(text[a]) {
			a++
		}
		for b > a && isSpaceByte(text[b-1]) {
			b--
		}
		if a < b {
			out = append(out, paragraph{text: text[a:b], start: a, end: b})
		}
	}
	for _, br := range breaks {
		emit(pos, br[0])
		pos = br[1]
	}
	emit(pos, len(text))
	return out
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Split chunks text in paragraph-preserving mode. Paragraphs are
// accumulated until appending the next one would exceed size; the
// buffer is then sealed and the next buffer is seeded with the sealed
// chunk's trailing overlap characters. Paragraphs longer than size are
// emitted whole rather than split mid-paragraph. Buffer start offsets
// are tracked directly, never re-derived by searching the text.
func Split(text string, size, overlap int, mapping PageMapping) ([]Chunk, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	paragraphs := splitParagraphs(text)
	chunks := []Chunk{}

	var buf strings.Builder
	bufStart := 0
	bufEnd := 0

	seal := func() {
		chunks = append(chunks, Chunk{
			Content:   buf.String(),
			StartChar: bufStart,
			EndChar:   bufEnd,
			Index:     len(chunks),
		})
	}

	for _, p := range paragraphs {
		if buf.Len() == 0 {
			buf.WriteString(p.text)
			bufStart = p.start
			bufEnd = p.end
			continue
		}

		if buf.Len()+2+len(p.text) <= size {
			buf.WriteString("\n\n")
			buf.WriteString(p.text)
			bufEnd = p.end
			continue
		}

		sealed := buf.String()
		seal()

		cut := len(sealed) - overlap
		if cut < 0 {
			cut = 0
		}
		// Never start the overlap mid-rune.
		for cut < len(sealed) && !utf8.RuneStart(sealed[cut]) {
			cut++
		}
		tail := sealed[cut:]

		buf.Reset()
		buf.WriteString(tail)
		buf.WriteString("\n\n")
		buf.WriteString(p.text)
		bufStart = bufEnd - len(tail)
		bufEnd = p.end
	}
	if buf.Len() > 0 {
		seal()
	}

	resolvePages(chunks, mapping)
	resolveParagraphs(chunks, paragraphs)
	return chunks, nil
}

// SplitFixed chunks text into fixed windows stepping by size-overlap,
// ignoring paragraph structure. Output shape matches Split.
func SplitFixed(text string, size, overlap int, mapping PageMapping) ([]Chunk, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	step := size - overlap
	chunks := []Chunk{}
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, Chunk{
			Content:   text[start:end],
			StartChar: start,
			EndChar:   end,
			Index:     len(chunks),
		})
		if end == len(text) {
			break
		}
	}

	resolvePages(chunks, mapping)
	resolveParagraphs(chunks, splitParagraphs(text))
	return chunks, nil
}

func resolvePages(chunks []Chunk, mapping PageMapping) {
	if len(mapping) == 0 {
		return
	}
	for i := range chunks {
		chunks[i].PageNumber = mapping.FindPage(chunks[i].StartChar)
	}
}

// resolveParagraphs assigns each chunk the ordinal of the paragraph its
// StartChar falls in. An overlap-seeded chunk starts inside the
// paragraph the overlap was cut from, which is the ordinal we want.
func resolveParagraphs(chunks []Chunk, paragraphs []paragraph) {
	if len(paragraphs) == 0 {
		return
	}
	for i := range chunks {
		pos := chunks[i].StartChar
		chunks[i].ParagraphNumber = len(paragraphs)
		for n, p := range paragraphs {
			if pos < p.end {
				chunks[i].ParagraphNumber = n + 1
				break
			}
		}
	}
}
