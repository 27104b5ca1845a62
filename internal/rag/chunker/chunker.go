package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// ErrEmptyDocument is returned when the input contains no usable text.
var ErrEmptyDocument = errors.New("document content is empty")

// MaxChunkSize bounds the configurable chunk size.
const MaxChunkSize = 32000

// Config controls how a document is split.
type Config struct {
	ChunkSize         int      // maximum characters per chunk
	ChunkOverlap      int      // characters shared between consecutive chunks
	Separators        []string // cut candidates in priority order
	PreserveStructure bool     // split on detected headings first
}

// DefaultConfig returns the splitting defaults used when a knowledge base
// carries no chunking configuration of its own.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Separators:   []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " "},
	}
}

// Validate checks the size and overlap bounds.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("chunk size must be between 1 and %d", MaxChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return errors.New("chunk overlap cannot be negative")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return errors.New("chunk overlap must be less than chunk size")
	}
	return nil
}

// Chunk is one bounded segment of a source document.
type Chunk struct {
	Index      int
	Content    string
	Title      string
	TokenCount int
	Start      int // byte offset in the source document
	End        int
	Metadata   map[string]interface{}
}

// Chunker splits raw document text into overlapping, size-bounded segments.
type Chunker struct {
	logger *logger.Logger
}

// New creates a chunker.
func New(log *logger.Logger) *Chunker {
	if log == nil {
		log = logger.L()
	}
	return &Chunker{logger: log}
}

// Chunk splits content according to cfg. Chunk indexes are contiguous from 0
// regardless of mode.
func (c *Chunker) Chunk(content string, cfg *Config) ([]*Chunk, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = DefaultConfig().Separators
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyDocument
	}

	var chunks []*Chunk
	if cfg.PreserveStructure {
		chunks = c.chunkStructured(content, cfg)
	} else {
		chunks = c.chunkSimple(content, cfg, 0, nil)
	}

	for i, ch := range chunks {
		ch.Index = i
	}

	c.logger.Debug("document chunked",
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Bool("structured", cfg.PreserveStructure))

	return chunks, nil
}

// chunkSimple walks the text taking windows of up to ChunkSize characters,
// preferring to cut at a separator found past the midpoint of the window so
// segments do not end mid-word. Consecutive windows overlap by ChunkOverlap.
// Sizes and offsets within the walk are measured in runes so multi-byte text
// cuts at the same effective size as ASCII; Start/End stay byte offsets.
func (c *Chunker) chunkSimple(content string, cfg *Config, baseOffset int, meta map[string]interface{}) []*Chunk {
	var chunks []*Chunk

	runes := []rune(content)
	byteOff := make([]int, len(runes)+1)
	for i, off := 0, 0; i < len(runes); i++ {
		byteOff[i] = off
		off += utf8.RuneLen(runes[i])
	}
	byteOff[len(runes)] = len(content)

	pos := 0
	for pos < len(runes) {
		end := pos + cfg.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := findCut(runes[pos:end], cfg); cut > 0 {
			end = pos + cut
		}

		segment := string(runes[pos:end])
		if text := strings.TrimSpace(segment); text != "" {
			chunks = append(chunks, &Chunk{
				Content:    text,
				Title:      ExtractTitle(text),
				TokenCount: EstimateTokens(text),
				Start:      baseOffset + byteOff[pos],
				End:        baseOffset + byteOff[end],
				Metadata:   cloneMeta(meta),
			})
		}

		if end >= len(runes) {
			break
		}

		next := end - cfg.ChunkOverlap
		if next <= pos {
			// overlap would stall the walk, step to the cut instead
			next = end
		}
		pos = next
	}

	return chunks
}

// findCut returns the rune position (relative to the window) just after the
// first separator, in priority order, whose occurrence lies beyond 50% of the
// chunk size. Returns -1 when no separator qualifies and the raw boundary is
// used.
func findCut(window []rune, cfg *Config) int {
	half := cfg.ChunkSize / 2
	text := string(window)
	for _, sep := range cfg.Separators {
		if sep == "" {
			continue
		}
		idx := strings.LastIndex(text, sep)
		if idx < 0 {
			continue
		}
		cut := utf8.RuneCountInString(text[:idx+len(sep)])
		if cut > half {
			return cut
		}
	}
	return -1
}

// EstimateTokens approximates the token count of text as ceil(runes/4).
// The same estimate budgets chunking and query context assembly.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// ExtractTitle derives a short title for a chunk. It prefers the first of
// the leading three lines that reads like a heading (10-100 characters, no
// trailing period, no double spaces); otherwise it falls back to the first
// eight words of the content.
func ExtractTitle(content string) string {
	lines := strings.SplitN(content, "\n", 4)
	limit := len(lines)
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		line := strings.TrimSpace(strings.TrimLeft(lines[i], "# "))
		n := utf8.RuneCountInString(line)
		if n >= 10 && n <= 100 && !strings.HasSuffix(line, ".") && !strings.Contains(line, "  ") {
			return line
		}
	}

	words := strings.Fields(content)
	if len(words) > 8 {
		return strings.Join(words[:8], " ") + "..."
	}
	return strings.Join(words, " ")
}

func cloneMeta(meta map[string]interface{}) map[string]interface{} {
	if meta == nil {
		return nil
	}
	copied := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		copied[k] = v
	}
	return copied
}
