package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/tidwall/gjson"
	"github.com/yuin/goldmark"
	goldmarktext "github.com/yuin/goldmark/text"
)

// DocumentProcessor extracts plain text from uploaded files so the chunker
// only ever sees text.
type DocumentProcessor struct{}

// NewDocumentProcessor creates a document processor.
func NewDocumentProcessor() *DocumentProcessor {
	return &DocumentProcessor{}
}

// ExtractText extracts the text content of fileData according to fileType.
func (p *DocumentProcessor) ExtractText(_ context.Context, fileData []byte, fileType string) (string, error) {
	switch strings.ToLower(fileType) {
	case "pdf":
		return p.extractPDF(fileData)
	case "txt", "text":
		return string(fileData), nil
	case "md", "markdown":
		return p.extractMarkdown(fileData)
	case "html", "htm":
		return StripHTML(string(fileData)), nil
	case "json":
		return p.extractJSON(fileData)
	case "doc", "docx":
		// no structured parser wired for Word documents; salvage whatever
		// printable text the file carries
		return extractPrintable(fileData), nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", fileType)
	}
}

// extractPDF extracts page text with go-fitz (MuPDF). Pages that fail to
// extract are skipped.
func (p *DocumentProcessor) extractPDF(fileData []byte) (string, error) {
	doc, err := fitz.NewFromMemory(fileData)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// extractMarkdown validates the markdown and returns it as-is: headings and
// list markers are exactly what structure-aware chunking feeds on.
func (p *DocumentProcessor) extractMarkdown(fileData []byte) (string, error) {
	md := goldmark.New()
	_ = md.Parser().Parse(goldmarktext.NewReader(fileData))
	return string(fileData), nil
}

// extractJSON flattens a JSON document into "key: value" lines so field
// names stay retrievable alongside their values.
func (p *DocumentProcessor) extractJSON(fileData []byte) (string, error) {
	if !gjson.ValidBytes(fileData) {
		return "", fmt.Errorf("invalid JSON format")
	}
	result := gjson.ParseBytes(fileData)

	var b strings.Builder
	var walk func(key string, value gjson.Result, depth int)
	walk = func(key string, value gjson.Result, depth int) {
		indent := strings.Repeat("  ", depth)
		switch {
		case value.IsArray():
			fmt.Fprintf(&b, "%s%s:\n", indent, key)
			for i, item := range value.Array() {
				walk(fmt.Sprintf("[%d]", i), item, depth+1)
			}
		case value.IsObject():
			fmt.Fprintf(&b, "%s%s:\n", indent, key)
			value.ForEach(func(k, v gjson.Result) bool {
				walk(k.String(), v, depth+1)
				return true
			})
		default:
			fmt.Fprintf(&b, "%s%s: %s\n", indent, key, value.String())
		}
	}

	switch {
	case result.IsArray():
		for i, item := range result.Array() {
			walk(fmt.Sprintf("[%d]", i), item, 0)
		}
	case result.IsObject():
		result.ForEach(func(key, value gjson.Result) bool {
			walk(key.String(), value, 0)
			return true
		})
	default:
		return result.String(), nil
	}

	return b.String(), nil
}

// extractPrintable keeps runs of printable ASCII and common Latin text, the
// crude but serviceable fallback for legacy binary formats.
func extractPrintable(data []byte) string {
	var b strings.Builder
	var run []byte
	flush := func() {
		if len(run) >= 4 {
			b.Write(run)
			b.WriteByte('\n')
		}
		run = run[:0]
	}
	for _, c := range data {
		if c >= 0x20 && c < 0x7f {
			run = append(run, c)
		} else {
			flush()
		}
	}
	flush()
	return b.String()
}
