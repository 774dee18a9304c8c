package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/coursemind/coursemind/internal/domain"
)

// DOCX extracts paragraph text from word/document.xml inside the OOXML zip.
// document.xml carries no page model, so the output is a single page.
type DOCX struct{}

// Extract implements FormatExtractor.
func (d *DOCX) Extract(_ context.Context, data []byte) (domain.ExtractedText, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.ExtractedText{}, domain.NewExtractionError(domain.FormatDOCX, domain.ErrParseFailure)
	}

	content, err := extractDocumentText(reader)
	if err != nil {
		return domain.ExtractedText{}, err
	}
	if content == "" {
		return domain.ExtractedText{}, domain.NewExtractionError(domain.FormatDOCX, domain.ErrParseFailure)
	}

	return domain.ExtractedText{Text: content, PageOffsets: []int{0}}, nil
}

// extractDocumentText extracts text from word/document.xml.
func extractDocumentText(reader *zip.Reader) (string, error) {
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", domain.NewExtractionError(domain.FormatDOCX, domain.ErrParseFailure)
		}

		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", domain.NewExtractionError(domain.FormatDOCX, domain.ErrParseFailure)
		}

		return parseDocumentXML(content), nil
	}
	return "", nil
}

// documentXML represents the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

// parseDocumentXML extracts text content from the document XML.
func parseDocumentXML(content []byte) string {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return ""
	}

	var result strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			result.WriteString("\n")
		}
		for _, r := range para.Runs {
			for _, t := range r.Text {
				result.WriteString(t.Content)
			}
		}
	}

	return strings.TrimSpace(result.String())
}
