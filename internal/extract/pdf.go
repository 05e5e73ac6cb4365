package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const pdfMagic = "%PDF-"

// isPDF reports whether a fetched page is a PDF document, either by declared
// type or by a .pdf path served as a generic binary.
func isPDF(page Page) bool {
	if page.MediaType == "application/pdf" || page.MediaType == "application/x-pdf" {
		return true
	}
	if !bytes.HasPrefix(page.Body, []byte(pdfMagic)) {
		return false
	}
	switch page.MediaType {
	case "", "application/octet-stream", "binary/octet-stream":
		return true
	}
	return page.URL != nil && strings.HasSuffix(strings.ToLower(page.URL.Path), ".pdf")
}

// extractPDF returns the document title (from the info dictionary, when
// present) and the plain text of every page.
func extractPDF(body []byte) (title, text string, err error) {
	if !bytes.HasPrefix(body, []byte(pdfMagic)) {
		return "", "", errors.New("missing pdf header")
	}
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			title, text, err = "", "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", "", fmt.Errorf("open pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", "", fmt.Errorf("page %d: %w", i, err)
		}
		if content = strings.TrimSpace(content); content != "" {
			pages = append(pages, content)
		}
	}

	title = strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text())
	return title, normalizeParagraphs(strings.Join(pages, "\n\n")), nil
}
