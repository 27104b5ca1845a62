package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// section is a heading-delimited region of the source document.
type section struct {
	title string
	level int
	start int // byte offset of the section body
	body  string
}

var (
	mdHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	numberedRe  = regexp.MustCompile(`^(\d+(?:\.\d+)*)[.)]\s+(.+)$`)
	romanRe     = regexp.MustCompile(`^([IVXLCDM]+)[.)]\s+(.+)$`)
	underlineRe = regexp.MustCompile(`^(={3,}|-{3,})\s*$`)
)

// chunkStructured splits the document at detected headings first, then
// applies simple chunking inside any section that exceeds the chunk size.
// Every produced chunk carries the section title and heading level in its
// metadata.
func (c *Chunker) chunkStructured(content string, cfg *Config) []*Chunk {
	sections := detectSections(content)
	if len(sections) <= 1 {
		return c.chunkSimple(content, cfg, 0, nil)
	}

	var chunks []*Chunk
	for _, sec := range sections {
		text := strings.TrimSpace(sec.body)
		if text == "" {
			continue
		}

		meta := map[string]interface{}{}
		if sec.title != "" {
			meta["section_title"] = sec.title
			meta["heading_level"] = sec.level
		}

		if utf8.RuneCountInString(text) <= cfg.ChunkSize {
			title := sec.title
			if title == "" {
				title = ExtractTitle(text)
			}
			chunks = append(chunks, &Chunk{
				Content:    text,
				Title:      title,
				TokenCount: EstimateTokens(text),
				Start:      sec.start,
				End:        sec.start + len(sec.body),
				Metadata:   meta,
			})
			continue
		}

		sub := c.chunkSimple(sec.body, cfg, sec.start, meta)
		for _, ch := range sub {
			if sec.title != "" && ch.Title == "" {
				ch.Title = sec.title
			}
		}
		chunks = append(chunks, sub...)
	}

	if len(chunks) == 0 {
		return c.chunkSimple(content, cfg, 0, nil)
	}
	return chunks
}

// detectSections scans for markdown, numbered, roman-numeral and underlined
// headings. Text before the first heading becomes an untitled preamble
// section.
func detectSections(content string) []section {
	lines := strings.Split(content, "\n")

	var sections []section
	current := section{start: 0}
	var body strings.Builder
	offset := 0

	flush := func() {
		current.body = body.String()
		if strings.TrimSpace(current.body) != "" || current.title != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		lineLen := len(line) + 1 // trailing newline

		title, level, ok := matchHeading(line)

		// underlined title: a plain line followed by === or ---
		if !ok && i+1 < len(lines) && underlineRe.MatchString(lines[i+1]) {
			t := strings.TrimSpace(line)
			if t != "" && utf8.RuneCountInString(t) <= 100 {
				title, ok = t, true
				if strings.HasPrefix(strings.TrimSpace(lines[i+1]), "=") {
					level = 1
				} else {
					level = 2
				}
			}
		}

		if ok {
			flush()
			if underline := i+1 < len(lines) && underlineRe.MatchString(lines[i+1]) && !mdHeadingRe.MatchString(line); underline {
				i++ // skip the underline row
				offset += lineLen + len(lines[i]) + 1
				i++
				// the section body begins after the underline row
				current = section{title: title, level: level, start: offset}
				continue
			}
			current = section{title: title, level: level, start: offset}
		}

		body.WriteString(line)
		if i < len(lines)-1 {
			// the split's last element has no newline of its own
			body.WriteString("\n")
		}
		offset += lineLen
		i++
	}
	flush()

	return sections
}

// matchHeading recognizes markdown, numbered and roman-numeral headings.
func matchHeading(line string) (title string, level int, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", 0, false
	}

	if m := mdHeadingRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[2]), len(m[1]), true
	}
	if m := numberedRe.FindStringSubmatch(trimmed); m != nil {
		level := strings.Count(m[1], ".") + 1
		return strings.TrimSpace(m[2]), level, true
	}
	if m := romanRe.FindStringSubmatch(trimmed); m != nil {
		// short uppercase words like "I" often start ordinary sentences,
		// require the heading text to look like a title
		text := strings.TrimSpace(m[2])
		if utf8.RuneCountInString(text) <= 100 {
			return text, 1, true
		}
	}
	return "", 0, false
}
