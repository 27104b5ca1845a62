package chunker

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{ChunkSize: 1000, ChunkOverlap: 200}, false},
		{"zero size", Config{ChunkSize: 0, ChunkOverlap: 0}, true},
		{"negative overlap", Config{ChunkSize: 100, ChunkOverlap: -1}, true},
		{"overlap equals size", Config{ChunkSize: 100, ChunkOverlap: 100}, true},
		{"overlap exceeds size", Config{ChunkSize: 100, ChunkOverlap: 150}, true},
		{"size above cap", Config{ChunkSize: MaxChunkSize + 1, ChunkOverlap: 0}, true},
		{"size at cap", Config{ChunkSize: MaxChunkSize, ChunkOverlap: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChunkEmptyDocument(t *testing.T) {
	c := New(nil)

	for _, content := range []string{"", "   ", "\n\t\n"} {
		if _, err := c.Chunk(content, nil); err != ErrEmptyDocument {
			t.Errorf("Chunk(%q) error = %v, want ErrEmptyDocument", content, err)
		}
	}
}

func TestChunkSingleSmallDocument(t *testing.T) {
	c := New(nil)

	chunks, err := c.Chunk("Nuestro horario es de 9 a 18 horas.", nil)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].Index)
	}
	if chunks[0].TokenCount == 0 {
		t.Error("expected non-zero token count")
	}
}

func TestChunkOverlapAndCoverage(t *testing.T) {
	c := New(nil)
	cfg := &Config{ChunkSize: 100, ChunkOverlap: 20, Separators: []string{". ", " "}}

	// long text of repeated sentences so separator cuts always exist
	content := strings.Repeat("Las palabras se repiten en este documento de prueba. ", 20)

	chunks, err := c.Chunk(content, cfg)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d, indexes must be contiguous", i, ch.Index)
		}
		if len(ch.Content) > cfg.ChunkSize {
			t.Errorf("chunk %d is %d chars, exceeds size %d", i, len(ch.Content), cfg.ChunkSize)
		}
		if i > 0 {
			gap := ch.Start - chunks[i-1].End
			if gap > cfg.ChunkOverlap {
				t.Errorf("gap of %d chars between chunk %d and %d exceeds overlap %d",
					gap, i-1, i, cfg.ChunkOverlap)
			}
		}
	}

	// consecutive windows must actually overlap
	if chunks[1].Start >= chunks[0].End {
		t.Errorf("expected overlap: chunk 1 starts at %d, chunk 0 ends at %d",
			chunks[1].Start, chunks[0].End)
	}
}

func TestChunkCutsAtSeparator(t *testing.T) {
	c := New(nil)
	cfg := &Config{ChunkSize: 60, ChunkOverlap: 0, Separators: []string{". "}}

	content := "Primera frase corta del documento. Segunda frase un poco mas larga. Tercera frase final del texto."

	chunks, err := c.Chunk(content, cfg)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	// the first cut should land after a sentence boundary, not mid-word
	if !strings.HasSuffix(chunks[0].Content, ".") {
		t.Errorf("expected first chunk to end at a sentence boundary, got %q", chunks[0].Content)
	}
}

func TestChunkStructuredMode(t *testing.T) {
	c := New(nil)
	cfg := &Config{ChunkSize: 500, ChunkOverlap: 50, PreserveStructure: true}

	content := "# Horarios\nAbrimos de lunes a viernes de 9 a 18 horas.\n\n" +
		"# Envios\nHacemos envios a todo el pais en 48 horas.\n"

	chunks, err := c.Chunk(content, cfg)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 section chunks, got %d", len(chunks))
	}

	if chunks[0].Metadata["section_title"] != "Horarios" {
		t.Errorf("expected section_title Horarios, got %v", chunks[0].Metadata["section_title"])
	}
	if chunks[1].Metadata["section_title"] != "Envios" {
		t.Errorf("expected section_title Envios, got %v", chunks[1].Metadata["section_title"])
	}
	if chunks[0].Metadata["heading_level"] != 1 {
		t.Errorf("expected heading_level 1, got %v", chunks[0].Metadata["heading_level"])
	}
}

func TestChunkStructuredOversizedSection(t *testing.T) {
	c := New(nil)
	cfg := &Config{ChunkSize: 80, ChunkOverlap: 10, PreserveStructure: true}

	content := "# Productos\n" + strings.Repeat("Vendemos articulos de oficina y papeleria. ", 10)

	chunks, err := c.Chunk(content, cfg)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("oversized section should produce multiple chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if ch.Metadata["section_title"] != "Productos" {
			t.Errorf("every sub-chunk should carry the section title, got %v", ch.Metadata["section_title"])
		}
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "heading-like first line",
			content: "Politica de devoluciones\nLos productos pueden devolverse en 30 dias.",
			want:    "Politica de devoluciones",
		},
		{
			name:    "skips line ending in period",
			content: "Esta linea termina en punto.\nHorario de atencion al cliente\nmas texto",
			want:    "Horario de atencion al cliente",
		},
		{
			name:    "falls back to first words",
			content: "uno dos tres cuatro cinco seis siete ocho nueve diez",
			want:    "uno dos tres cuatro cinco seis siete ocho...",
		},
		{
			name:    "short content verbatim",
			content: "hola mundo",
			want:    "hola mundo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractTitle(tt.content); got != tt.want {
				t.Errorf("ExtractTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestChunkTinySizeMultiByteTerminates(t *testing.T) {
	c := New(nil)

	type outcome struct {
		chunks []*Chunk
		err    error
	}

	// sizes smaller than one emoji's byte width must still advance the walk
	for _, size := range []int{1, 2, 3} {
		cfg := &Config{ChunkSize: size, ChunkOverlap: 0, Separators: []string{" "}}

		done := make(chan outcome, 1)
		go func() {
			chunks, err := c.Chunk("😀😀😀", cfg)
			done <- outcome{chunks, err}
		}()

		select {
		case out := <-done:
			if out.err != nil {
				t.Fatalf("Chunk() size %d error = %v", size, out.err)
			}
			total := 0
			for _, ch := range out.chunks {
				n := utf8.RuneCountInString(ch.Content)
				if n > size {
					t.Errorf("size %d produced a %d-rune chunk %q", size, n, ch.Content)
				}
				total += n
			}
			if total != 3 {
				t.Errorf("size %d covered %d runes, want 3", size, total)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("Chunk() with size %d did not return, the walk stalled", size)
		}
	}
}

func TestChunkSizeMeasuredInRunes(t *testing.T) {
	c := New(nil)
	cfg := &Config{ChunkSize: 10, ChunkOverlap: 0, Separators: []string{" "}}

	// accented and plain text of equal rune length must cut identically
	accented, err := c.Chunk(strings.Repeat("á", 25), cfg)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	plain, err := c.Chunk(strings.Repeat("a", 25), cfg)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	if len(accented) != len(plain) {
		t.Fatalf("accented text split into %d chunks, plain into %d", len(accented), len(plain))
	}
	for i := range accented {
		got := utf8.RuneCountInString(accented[i].Content)
		want := utf8.RuneCountInString(plain[i].Content)
		if got != want {
			t.Errorf("chunk %d: %d runes accented vs %d plain", i, got, want)
		}
		if got > cfg.ChunkSize {
			t.Errorf("chunk %d is %d runes, exceeds size %d", i, got, cfg.ChunkSize)
		}
	}

	// byte offsets still address the source text
	if accented[0].End-accented[0].Start != 20 {
		t.Errorf("first accented chunk spans %d bytes, want 20", accented[0].End-accented[0].Start)
	}
}

func TestChunkStructuredUnderlinedHeadingOffsets(t *testing.T) {
	c := New(nil)
	cfg := &Config{ChunkSize: 500, ChunkOverlap: 50, PreserveStructure: true}

	content := "Horarios\n========\nAbrimos de 9 a 18 horas.\n\nEnvios\n------\nEnviamos a todo el pais.\n"

	chunks, err := c.Chunk(content, cfg)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 section chunks, got %d", len(chunks))
	}

	for i, ch := range chunks {
		if ch.Start < 0 || ch.End > len(content) || ch.Start >= ch.End {
			t.Fatalf("chunk %d has offsets [%d,%d) outside the source (len %d)",
				i, ch.Start, ch.End, len(content))
		}
		if got := strings.TrimSpace(content[ch.Start:ch.End]); got != ch.Content {
			t.Errorf("chunk %d offsets address %q, content is %q", i, got, ch.Content)
		}
	}

	if chunks[0].Title != "Horarios" || chunks[1].Title != "Envios" {
		t.Errorf("titles = %q, %q", chunks[0].Title, chunks[1].Title)
	}
	if chunks[0].Metadata["heading_level"] != 1 || chunks[1].Metadata["heading_level"] != 2 {
		t.Errorf("heading levels = %v, %v",
			chunks[0].Metadata["heading_level"], chunks[1].Metadata["heading_level"])
	}
}
