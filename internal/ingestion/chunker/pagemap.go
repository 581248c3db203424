package chunker

// pageSeparator joins page texts into the full document text. Its
// length is part of the offset math; changing it invalidates stored
// chunk spans.
const pageSeparator = "\n\n"

// PageText is one extracted page in emission order.
type PageText struct {
	Number int
	Text   string
}

// PageSpan maps one page onto a half-open [Start, End) range of the
// joined document text.
type PageSpan struct {
	Page  int
	Start int
	End   int
}

type PageMapping []PageSpan

// BuildPageMapping computes cumulative page spans for pages joined
// with the fixed separator. The joined text must be produced with the
// same separator or the spans will not line up.
func BuildPageMapping(pages []PageText) PageMapping {
	mapping := make(PageMapping, 0, len(pages))
	offset := 0
	for i, p := range pages {
		start := offset
		end := start + len(p.Text)
		mapping = append(mapping, PageSpan{Page: p.Number, Start: start, End: end})
		offset = end
		if i < len(pages)-1 {
			offset += len(pageSeparator)
		}
	}
	return mapping
}

// FindPage returns the page whose span contains pos. Positions past
// the last span end resolve to the final page, which covers trailing
// overlap drift in chunk offsets. Positions inside a separator resolve
// to the following page. Returns 0 for an empty mapping.
func (m PageMapping) FindPage(pos int) int {
	if len(m) == 0 {
		return 0
	}
	for _, span := range m {
		if pos < span.Start {
			return span.Page
		}
		if pos < span.End {
			return span.Page
		}
	}
	return m[len(m)-1].Page
}
