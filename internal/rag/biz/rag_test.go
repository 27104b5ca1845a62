package biz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jvillegas-dev/chatbot-backend/internal/rag/chunker"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/embedding"
)

// memoryStore implements KnowledgeBaseRepo and ChunkRepo in memory for
// orchestrator tests.
type memoryStore struct {
	mu      sync.Mutex
	seq     int
	kbs     map[string]*KnowledgeBase
	order   map[string]int
	chunks  map[string][]*DocumentChunk
	touched chan []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		kbs:     make(map[string]*KnowledgeBase),
		order:   make(map[string]int),
		chunks:  make(map[string][]*DocumentChunk),
		touched: make(chan []string, 8),
	}
}

func (s *memoryStore) Create(_ context.Context, kb *KnowledgeBase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.kbs[kb.ID] = kb
	s.order[kb.ID] = s.seq
	return nil
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*KnowledgeBase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kb, ok := s.kbs[id]
	if !ok {
		return nil, ErrKnowledgeBaseNotFound
	}
	return kb, nil
}

func (s *memoryStore) GetLatestActive(_ context.Context, chatbotID string) (*KnowledgeBase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *KnowledgeBase
	for id, kb := range s.kbs {
		if kb.ChatbotID != chatbotID || !kb.IsActive {
			continue
		}
		if latest == nil || s.order[id] > s.order[latest.ID] {
			latest = kb
		}
	}
	if latest == nil {
		return nil, ErrKnowledgeBaseNotFound
	}
	return latest, nil
}

func (s *memoryStore) ListByChatbot(_ context.Context, chatbotID string) ([]*KnowledgeBase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*KnowledgeBase
	for _, kb := range s.kbs {
		if kb.ChatbotID == chatbotID {
			out = append(out, kb)
		}
	}
	return out, nil
}

func (s *memoryStore) Update(_ context.Context, kb *KnowledgeBase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kbs[kb.ID]; !ok {
		return ErrKnowledgeBaseNotFound
	}
	s.kbs[kb.ID] = kb
	return nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kb, ok := s.kbs[id]
	if !ok {
		return ErrKnowledgeBaseNotFound
	}
	kb.Status = status
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kbs, id)
	delete(s.chunks, id)
	return nil
}

func (s *memoryStore) Stats(_ context.Context, chatbotID string) (*KnowledgeBaseStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &KnowledgeBaseStats{}
	for id, kb := range s.kbs {
		if kb.ChatbotID != chatbotID {
			continue
		}
		stats.TotalDocuments++
		stats.TotalChunks += int64(len(s.chunks[id]))
		stats.TotalTokens += int64(kb.TotalTokens)
		if kb.Status == StatusProcessed {
			stats.ProcessedCount++
		}
		if kb.Status == StatusError {
			stats.ErrorCount++
		}
	}
	return stats, nil
}

func (s *memoryStore) BatchCreate(_ context.Context, chunks []*DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.KnowledgeBaseID] = append(s.chunks[c.KnowledgeBaseID], c)
	}
	return nil
}

func (s *memoryStore) ListActive(_ context.Context, chatbotID string, filter *ChunkFilter) ([]*DocumentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*DocumentChunk
	for id, kb := range s.kbs {
		if kb.ChatbotID != chatbotID || !kb.IsActive || kb.Status != StatusProcessed {
			continue
		}
		if filter != nil && len(filter.Categories) > 0 && !contains(filter.Categories, kb.Category) {
			continue
		}
		for _, c := range s.chunks[id] {
			if c.IsActive {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// chunkStore exposes the ChunkRepo side of memoryStore; KnowledgeBaseRepo
// and ChunkRepo both declare ListByChatbot with different return types, so
// a single type cannot implement both interfaces.
type chunkStore struct{ *memoryStore }

func (s chunkStore) ListByChatbot(_ context.Context, chatbotID string) ([]*DocumentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*DocumentChunk
	for id, kb := range s.kbs {
		if kb.ChatbotID != chatbotID {
			continue
		}
		for _, c := range s.chunks[id] {
			if c.IsActive {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (s *memoryStore) BatchTouchRetrieved(_ context.Context, ids []string) error {
	select {
	case s.touched <- ids:
	default:
	}
	return nil
}

func (s *memoryStore) DeleteByKnowledgeBase(_ context.Context, knowledgeBaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, knowledgeBaseID)
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

type stubSynthesizer struct {
	answer string
	err    error
	calls  int
}

func (s *stubSynthesizer) Synthesize(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.answer, s.err
}

// failingEmbedder always errors, for the all-chunks-fail scenario.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding backend down")
}
func (failingEmbedder) Dimension() int   { return embedding.LocalDimension }
func (failingEmbedder) Model() string    { return "failing" }
func (failingEmbedder) Provider() string { return "failing" }

func newTestUseCase(store *memoryStore, embedder embedding.Embedder, synth Synthesizer) *RAGUseCase {
	engine := NewRetrievalEngine(chunkStore{store}, nil)
	return NewRAGUseCase(store, chunkStore{store}, engine, chunker.New(nil), embedder, synth, nil, Defaults{
		Chunking:  ChunkingConfig{ChunkSize: 1000, ChunkOverlap: 200},
		Retrieval: RetrievalConfig{MaxResults: 5, Threshold: 0.3, ContextTokens: 2000},
	}, nil)
}

func TestProcessDocumentAndQuery(t *testing.T) {
	store := newMemoryStore()
	synth := &stubSynthesizer{answer: "Atendemos de 9 a 18 horas."}
	uc := newTestUseCase(store, embedding.NewLocalEmbedder(0), synth)
	ctx := context.Background()

	res, err := uc.ProcessDocument(ctx, &ProcessDocumentRequest{
		ChatbotID: "bot-x",
		Title:     "FAQ",
		Content:   "Nuestro horario es de 9 a 18 horas.",
	})
	if err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}
	if res.ChunksCreated == 0 {
		t.Fatal("no chunks created")
	}
	if res.Message != "processed 1/1 chunks" {
		t.Errorf("message = %q", res.Message)
	}

	kb, err := store.GetByID(ctx, res.KnowledgeBaseID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if kb.Status != StatusProcessed {
		t.Errorf("status = %q, want %q", kb.Status, StatusProcessed)
	}
	if kb.ProcessedChunks > kb.TotalChunks {
		t.Errorf("processedChunks %d > totalChunks %d", kb.ProcessedChunks, kb.TotalChunks)
	}

	result, err := uc.Query(ctx, &QueryRequest{ChatbotID: "bot-x", Query: "¿cuál es el horario?"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Sources) == 0 {
		t.Fatal("expected non-empty sources")
	}
	if !strings.Contains(strings.ToLower(result.Sources[0].Content), "horario") {
		t.Errorf("top source content %q does not mention the query topic", result.Sources[0].Content)
	}
	if result.Confidence <= 0 {
		t.Errorf("confidence = %f, want > 0", result.Confidence)
	}
	if result.Answer == "" {
		t.Error("empty answer")
	}
}

func TestQueryUnknownChatbot(t *testing.T) {
	store := newMemoryStore()
	uc := newTestUseCase(store, embedding.NewLocalEmbedder(0), &stubSynthesizer{answer: "x"})

	result, err := uc.Query(context.Background(), &QueryRequest{ChatbotID: "nadie", Query: "¿horario?"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Sources) != 0 {
		t.Errorf("sources = %d, want 0", len(result.Sources))
	}
	if result.Confidence != 0 {
		t.Errorf("confidence = %f, want 0", result.Confidence)
	}
	if result.Answer != MsgNoKnowledgeBase {
		t.Errorf("answer = %q, want the fixed no-knowledge-base message", result.Answer)
	}
}

func TestProcessDocumentAllChunksFail(t *testing.T) {
	store := newMemoryStore()
	uc := newTestUseCase(store, failingEmbedder{}, nil)
	ctx := context.Background()

	res, err := uc.ProcessDocument(ctx, &ProcessDocumentRequest{
		ChatbotID: "bot-x",
		Title:     "FAQ",
		Content:   "Contenido que no se podrá indexar.",
	})
	if err != nil {
		t.Fatalf("ProcessDocument() should absorb per-chunk failures, got %v", err)
	}
	if res.ChunksCreated != 0 {
		t.Errorf("chunksCreated = %d, want 0", res.ChunksCreated)
	}

	kb, _ := store.GetByID(ctx, res.KnowledgeBaseID)
	if kb.Status != StatusError {
		t.Errorf("status = %q, want %q", kb.Status, StatusError)
	}
	if kb.ProcessedChunks != 0 {
		t.Errorf("processedChunks = %d, want 0", kb.ProcessedChunks)
	}
}

func TestProcessDocumentValidation(t *testing.T) {
	uc := newTestUseCase(newMemoryStore(), embedding.NewLocalEmbedder(0), nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     *ProcessDocumentRequest
		wantErr error
	}{
		{"missing chatbot", &ProcessDocumentRequest{Title: "t", Content: "c"}, ErrChatbotIDRequired},
		{"missing title", &ProcessDocumentRequest{ChatbotID: "b", Content: "c"}, ErrTitleRequired},
		{"missing content", &ProcessDocumentRequest{ChatbotID: "b", Title: "t"}, ErrContentRequired},
		{"whitespace content", &ProcessDocumentRequest{ChatbotID: "b", Title: "t", Content: "   \n"}, ErrContentRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.ProcessDocument(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSimpleQueryKeywordOverlapFallback(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	// knowledge base stuck in pending: invisible to semantic retrieval but
	// its chunks are still reachable on the degraded path
	kb := &KnowledgeBase{ID: "kb-1", ChatbotID: "bot-x", Title: "FAQ", Status: StatusPending, IsActive: true}
	if err := store.Create(ctx, kb); err != nil {
		t.Fatal(err)
	}
	if err := store.BatchCreate(ctx, []*DocumentChunk{{
		ID:              "c-1",
		KnowledgeBaseID: "kb-1",
		Content:         "Hacemos envíos a todo el país en 3 días hábiles.",
		IsActive:        true,
	}}); err != nil {
		t.Fatal(err)
	}

	synth := &stubSynthesizer{answer: "Enviamos a todo el país."}
	uc := newTestUseCase(store, embedding.NewLocalEmbedder(0), synth)

	result, err := uc.SimpleQuery(ctx, &QueryRequest{ChatbotID: "bot-x", Query: "¿hacen envíos?"})
	if err != nil {
		t.Fatalf("SimpleQuery() error = %v", err)
	}
	if len(result.Sources) == 0 {
		t.Fatal("expected keyword-overlap fallback to surface the chunk")
	}
	if result.Sources[0].ID != "c-1" {
		t.Errorf("top source = %q, want c-1", result.Sources[0].ID)
	}
	if result.Confidence <= 0 {
		t.Errorf("confidence = %f, want > 0", result.Confidence)
	}
	if synth.calls == 0 {
		t.Error("synthesizer should have been invoked on the fallback result")
	}
}

func TestSimpleQueryExtractionFallback(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	kb := &KnowledgeBase{ID: "kb-1", ChatbotID: "bot-x", Title: "FAQ", Status: StatusPending, IsActive: true}
	_ = store.Create(ctx, kb)
	_ = store.BatchCreate(ctx, []*DocumentChunk{{
		ID:              "c-1",
		KnowledgeBaseID: "kb-1",
		Content:         "Nuestro horario es de 9 a 18 horas de lunes a viernes.",
		IsActive:        true,
	}})

	// synthesizer down: the regex extraction path must still answer
	uc := newTestUseCase(store, embedding.NewLocalEmbedder(0), &stubSynthesizer{err: errors.New("provider down")})

	result, err := uc.SimpleQuery(ctx, &QueryRequest{ChatbotID: "bot-x", Query: "¿cuál es el horario de atención?"})
	if err != nil {
		t.Fatalf("SimpleQuery() error = %v", err)
	}
	if !strings.Contains(result.Answer, "9 a 18") {
		t.Errorf("answer = %q, want the extracted schedule", result.Answer)
	}
	if len(result.Sources) == 0 {
		t.Error("expected sources from the keyword stage")
	}
}

func TestSimpleQueryNothingIngested(t *testing.T) {
	uc := newTestUseCase(newMemoryStore(), embedding.NewLocalEmbedder(0), nil)

	result, err := uc.SimpleQuery(context.Background(), &QueryRequest{ChatbotID: "bot-x", Query: "¿horario de atención?"})
	if err != nil {
		t.Fatalf("SimpleQuery() error = %v", err)
	}
	if len(result.Sources) != 0 || result.Confidence != 0 {
		t.Errorf("expected empty terminal state, got %d sources confidence %f", len(result.Sources), result.Confidence)
	}
	if result.Answer != MsgNoKnowledgeBase {
		t.Errorf("answer = %q, want %q", result.Answer, MsgNoKnowledgeBase)
	}
}

func TestBuildContextRespectsBudget(t *testing.T) {
	big := strings.Repeat("contenido relevante ", 100) // ~500 tokens

	results := []*ScoredChunk{
		{Chunk: &DocumentChunk{Title: "Primero", Content: big}, Similarity: 0.9},
		{Chunk: &DocumentChunk{Title: "Segundo", Content: big}, Similarity: 0.8},
		{Chunk: &DocumentChunk{Title: "Tercero", Content: big}, Similarity: 0.7},
	}

	text := BuildContext(results, 600)
	if !strings.Contains(text, "=== Primero ===") {
		t.Error("top chunk must always be included")
	}
	if strings.Contains(text, "=== Tercero ===") {
		t.Error("third chunk should not fit the budget")
	}

	// a budget that cannot even fit the top chunk still includes it
	tiny := BuildContext(results, 10)
	if !strings.Contains(tiny, "=== Primero ===") {
		t.Error("top chunk must be included even over budget")
	}
}

func TestQueryRetrievalStatsUpdated(t *testing.T) {
	store := newMemoryStore()
	uc := newTestUseCase(store, embedding.NewLocalEmbedder(0), &stubSynthesizer{answer: "ok"})
	ctx := context.Background()

	res, err := uc.ProcessDocument(ctx, &ProcessDocumentRequest{
		ChatbotID: "bot-x",
		Title:     "FAQ",
		Content:   "Nuestro horario es de 9 a 18 horas.",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := uc.Query(ctx, &QueryRequest{ChatbotID: "bot-x", Query: "horario"}); err != nil {
		t.Fatal(err)
	}

	select {
	case ids := <-store.touched:
		if len(ids) == 0 {
			t.Error("touch update carried no chunk ids")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retrieval stats were never updated")
	}
	_ = res
}

func TestSimpleQueryNoMatchKeepsNoResultsMessage(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	// ingested chatbot whose chunks match nothing: the answer must say "no
	// results", not "no knowledge base"
	kb := &KnowledgeBase{ID: "kb-1", ChatbotID: "bot-x", Title: "FAQ", Status: StatusPending, IsActive: true}
	if err := store.Create(ctx, kb); err != nil {
		t.Fatal(err)
	}
	if err := store.BatchCreate(ctx, []*DocumentChunk{{
		ID:              "c-1",
		KnowledgeBaseID: "kb-1",
		Content:         "Hacemos envíos a todo el país en 3 días hábiles.",
		IsActive:        true,
	}}); err != nil {
		t.Fatal(err)
	}

	uc := newTestUseCase(store, embedding.NewLocalEmbedder(0), nil)

	result, err := uc.SimpleQuery(ctx, &QueryRequest{ChatbotID: "bot-x", Query: "¿aceptan criptomonedas?"})
	if err != nil {
		t.Fatalf("SimpleQuery() error = %v", err)
	}
	if result.Answer != MsgNoResults {
		t.Errorf("answer = %q, want %q", result.Answer, MsgNoResults)
	}
	if len(result.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(result.Sources))
	}
}
