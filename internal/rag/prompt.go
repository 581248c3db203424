package rag

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a legal research assistant answering questions about case documents.

Rules:
1. Use ONLY the supplied sources. Do not rely on outside knowledge.
2. If the sources do not contain enough information to answer, respond with exactly: "` + RefusalAnswer + `"
3. Cite every claim with its source marker, e.g. [Source 1].
4. Never infer beyond what the sources state.
5. If sources contradict each other, say so explicitly and cite both.`

func userPrompt(question string, sources []source) string {
	var b strings.Builder
	b.WriteString("Sources:\n\n")
	for i, src := range sources {
		b.WriteString(fmt.Sprintf("[Source %d - %s", i+1, src.name))
		if src.chunk.PageNumber != nil {
			b.WriteString(fmt.Sprintf(", Page %d", *src.chunk.PageNumber))
		}
		b.WriteString("]:\n")
		b.WriteString(src.chunk.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func degradedAnswer(sources []source) string {
	var b strings.Builder
	b.WriteString("No generation provider is configured; the most relevant excerpts are returned instead.\n\n")
	for i, src := range sources {
		b.WriteString(fmt.Sprintf("[Source %d - %s]: %s\n\n", i+1, src.name, capQuote(src.chunk.Content)))
	}
	return strings.TrimSpace(b.String())
}
