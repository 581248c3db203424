package extractor

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"os"
	"strings"
)

func (s *Service) extractPlainText(filePath string) (*Result, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, extractErr(filePath, err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, extractErr(filePath, fmt.Errorf("file is empty"))
	}
	return singlePage(text), nil
}

// extractEmail parses an RFC 5322 message: routing headers first, then
// the preferred text/plain body part.
func (s *Service) extractEmail(filePath string) (*Result, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, extractErr(filePath, err)
	}
	defer f.Close()

	msg, err := mail.ReadMessage(f)
	if err != nil {
		return nil, extractErr(filePath, fmt.Errorf("parse message: %w", err))
	}

	var b strings.Builder
	for _, h := range []string{"From", "To", "Cc", "Date", "Subject"} {
		if v := strings.TrimSpace(msg.Header.Get(h)); v != "" {
			b.WriteString(h)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}

	body, err := emailBodyText(msg)
	if err != nil {
		return nil, extractErr(filePath, err)
	}
	if strings.TrimSpace(body) != "" {
		b.WriteString("\n")
		b.WriteString(body)
	}

	if strings.TrimSpace(b.String()) == "" {
		return nil, extractErr(filePath, fmt.Errorf("message has no readable content"))
	}
	return singlePage(b.String()), nil
}

func emailBodyText(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		raw, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", fmt.Errorf("read body: %w", err)
		}
		return string(raw), nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		raw, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return "", fmt.Errorf("read body: %w", readErr)
		}
		return string(raw), nil
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		raw, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", fmt.Errorf("read body: %w", err)
		}
		if strings.HasPrefix(mediaType, "text/html") {
			return stripMarkup(string(raw)), nil
		}
		return string(raw), nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("multipart message missing boundary")
	}

	// Prefer text/plain; fall back to stripped text/html.
	var plain, html strings.Builder
	mr := multipart.NewReader(msg.Body, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read part: %w", err)
		}
		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		switch {
		case strings.HasPrefix(partType, "text/plain"):
			raw, _ := io.ReadAll(part)
			plain.Write(raw)
			plain.WriteString("\n")
		case strings.HasPrefix(partType, "text/html"):
			raw, _ := io.ReadAll(part)
			html.Write(raw)
			html.WriteString("\n")
		}
	}

	if strings.TrimSpace(plain.String()) != "" {
		return plain.String(), nil
	}
	return stripMarkup(html.String()), nil
}
