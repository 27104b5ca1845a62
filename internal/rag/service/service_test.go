package service

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvillegas-dev/chatbot-backend/internal/rag/biz"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/chunker"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/embedding"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/processor"
)

// fakeStore implements both repos in memory for handler tests.
type fakeStore struct {
	mu     sync.Mutex
	seq    int
	kbs    map[string]*biz.KnowledgeBase
	order  map[string]int
	chunks map[string][]*biz.DocumentChunk
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kbs:    make(map[string]*biz.KnowledgeBase),
		order:  make(map[string]int),
		chunks: make(map[string][]*biz.DocumentChunk),
	}
}

func (s *fakeStore) Create(_ context.Context, kb *biz.KnowledgeBase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.kbs[kb.ID] = kb
	s.order[kb.ID] = s.seq
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*biz.KnowledgeBase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kb, ok := s.kbs[id]
	if !ok {
		return nil, biz.ErrKnowledgeBaseNotFound
	}
	return kb, nil
}

func (s *fakeStore) GetLatestActive(_ context.Context, chatbotID string) (*biz.KnowledgeBase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *biz.KnowledgeBase
	for id, kb := range s.kbs {
		if kb.ChatbotID != chatbotID || !kb.IsActive {
			continue
		}
		if latest == nil || s.order[id] > s.order[latest.ID] {
			latest = kb
		}
	}
	if latest == nil {
		return nil, biz.ErrKnowledgeBaseNotFound
	}
	return latest, nil
}

func (s *fakeStore) ListByChatbot(_ context.Context, chatbotID string) ([]*biz.KnowledgeBase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*biz.KnowledgeBase
	for _, kb := range s.kbs {
		if kb.ChatbotID == chatbotID {
			out = append(out, kb)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, kb *biz.KnowledgeBase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kbs[kb.ID] = kb
	return nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kb, ok := s.kbs[id]; ok {
		kb.Status = status
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kbs[id]; !ok {
		return biz.ErrKnowledgeBaseNotFound
	}
	delete(s.kbs, id)
	delete(s.chunks, id)
	return nil
}

func (s *fakeStore) Stats(_ context.Context, chatbotID string) (*biz.KnowledgeBaseStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &biz.KnowledgeBaseStats{}
	for id, kb := range s.kbs {
		if kb.ChatbotID != chatbotID {
			continue
		}
		stats.TotalDocuments++
		stats.TotalChunks += int64(len(s.chunks[id]))
		stats.TotalTokens += int64(kb.TotalTokens)
		if kb.Status == biz.StatusProcessed {
			stats.ProcessedCount++
		}
	}
	return stats, nil
}

func (s *fakeStore) BatchCreate(_ context.Context, chunks []*biz.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chunks {
		s.chunks[ch.KnowledgeBaseID] = append(s.chunks[ch.KnowledgeBaseID], ch)
	}
	return nil
}

func (s *fakeStore) ListActive(_ context.Context, chatbotID string, filter *biz.ChunkFilter) ([]*biz.DocumentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*biz.DocumentChunk
	for kbID, chunks := range s.chunks {
		kb := s.kbs[kbID]
		if kb == nil || kb.ChatbotID != chatbotID || !kb.IsActive || kb.Status != biz.StatusProcessed {
			continue
		}
		out = append(out, chunks...)
	}
	return out, nil
}

func (s *fakeStore) BatchTouchRetrieved(_ context.Context, ids []string) error { return nil }

func (s *fakeStore) DeleteByKnowledgeBase(_ context.Context, kbID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, kbID)
	return nil
}

// chunkStore gives the fakeStore a second ListByChatbot with the chunk
// signature required by biz.ChunkRepo.
type chunkStore struct{ *fakeStore }

func (s chunkStore) ListByChatbot(_ context.Context, chatbotID string) ([]*biz.DocumentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*biz.DocumentChunk
	for kbID, chunks := range s.chunks {
		if kb := s.kbs[kbID]; kb != nil && kb.ChatbotID == chatbotID {
			out = append(out, chunks...)
		}
	}
	return out, nil
}

type fixedSynthesizer struct{ answer string }

func (f *fixedSynthesizer) Synthesize(_ context.Context, _, _ string) (string, error) {
	return f.answer, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newFakeStore()
	engine := biz.NewRetrievalEngine(chunkStore{store}, nil)
	uc := biz.NewRAGUseCase(
		store,
		chunkStore{store},
		engine,
		chunker.New(nil),
		embedding.NewLocalEmbedder(64),
		&fixedSynthesizer{answer: "Atendemos de 9 a 18 horas."},
		nil,
		biz.Defaults{Retrieval: biz.RetrievalConfig{Threshold: 0.3}},
		nil,
	)

	svc := NewRAGService(uc, processor.NewDocumentProcessor(), 1<<20, nil)
	r := gin.New()
	svc.RegisterRoutes(r.Group("/api/v1"))
	return r, store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, *envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, &env
}

func ingestDocument(t *testing.T, r *gin.Engine, chatbotID, title, content string) {
	t.Helper()
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/rag/process-document", ProcessDocumentRequest{
		ChatbotID: chatbotID,
		Title:     title,
		Content:   content,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, 0, env.Code)
}

func TestProcessDocumentEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/rag/process-document", ProcessDocumentRequest{
		ChatbotID: "bot-1",
		Title:     "Horario",
		Content:   "Nuestro horario es de 9 a 18 horas.",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 0, env.Code)

	var resp ProcessDocumentResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.NotEmpty(t, resp.KnowledgeBaseID)
	assert.Equal(t, 1, resp.ChunksCreated)
	assert.Contains(t, resp.Message, "processed 1/1 chunks")
}

func TestProcessDocumentEndpointValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/rag/process-document", ProcessDocumentRequest{
		ChatbotID: "bot-1",
		Content:   "sin título",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, "title")
}

func TestQueryEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	ingestDocument(t, r, "bot-1", "Horario", "Nuestro horario es de 9 a 18 horas.")

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/rag/query", QueryRequest{
		ChatbotID: "bot-1",
		Query:     "¿cuál es el horario?",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var result biz.QueryResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "Atendemos de 9 a 18 horas.", result.Answer)
	require.NotEmpty(t, result.Sources)
	assert.Contains(t, result.Sources[0].Content, "horario")
	assert.Greater(t, result.Confidence, 0.0)
}

func TestQueryEndpointUnknownChatbot(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/rag/query", QueryRequest{
		ChatbotID: "ghost",
		Query:     "¿hola?",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var result biz.QueryResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, biz.MsgNoKnowledgeBase, result.Answer)
	assert.Empty(t, result.Sources)
	assert.Zero(t, result.Confidence)
}

func TestQueryEndpointMissingQuery(t *testing.T) {
	r, _ := newTestRouter(t)

	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/rag/query", QueryRequest{
		ChatbotID: "bot-1",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadDocumentEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "horario.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Nuestro horario es de 9 a 18 horas."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rag/upload-document/bot-1", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var resp ProcessDocumentResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "horario.txt", resp.Title)
	assert.Equal(t, 1, resp.ChunksCreated)
}

func TestUploadDocumentRejectsUnknownExtension(t *testing.T) {
	r, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "binario.exe")
	require.NoError(t, err)
	_, err = fw.Write([]byte{0x4d, 0x5a})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rag/upload-document/bot-1", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessURLEndpoint(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>Hacemos envíos a todo el país.</p></body></html>"))
	}))
	defer page.Close()

	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/rag/process-url", ProcessURLRequest{
		ChatbotID: "bot-1",
		URL:       page.URL,
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var resp ProcessDocumentResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 1, resp.ChunksCreated)
	assert.True(t, strings.HasPrefix(resp.Title, "127.0.0.1"), "title should default to the host: %s", resp.Title)
}

func TestListStatsDeleteFlow(t *testing.T) {
	r, _ := newTestRouter(t)
	ingestDocument(t, r, "bot-1", "Horario", "Nuestro horario es de 9 a 18 horas.")

	_, env := doJSON(t, r, http.MethodGet, "/api/v1/rag/knowledge-bases/bot-1", nil)
	var listing struct {
		Items []*KnowledgeBaseResponse `json:"items"`
		Total int                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listing))
	require.Equal(t, 1, listing.Total)
	kbID := listing.Items[0].ID
	assert.Equal(t, biz.StatusProcessed, listing.Items[0].Status)

	_, env = doJSON(t, r, http.MethodGet, "/api/v1/rag/stats/bot-1", nil)
	var stats biz.KnowledgeBaseStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(1), stats.TotalDocuments)
	assert.Equal(t, int64(1), stats.TotalChunks)

	w, _ := doJSON(t, r, http.MethodDelete, "/api/v1/rag/knowledge-base/"+kbID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	_, env = doJSON(t, r, http.MethodGet, "/api/v1/rag/knowledge-bases/bot-1", nil)
	require.NoError(t, json.Unmarshal(env.Data, &listing))
	assert.Equal(t, 0, listing.Total)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/v1/rag/knowledge-base/"+kbID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDebugChunksEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	ingestDocument(t, r, "bot-1", "Horario", "Nuestro horario es de 9 a 18 horas.")

	_, env := doJSON(t, r, http.MethodGet, "/api/v1/rag/debug-chunks/bot-1", nil)
	var listing struct {
		Items []*ChunkDebugResponse `json:"items"`
		Total int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listing))
	require.Equal(t, 1, listing.Total)
	assert.True(t, listing.Items[0].EmbeddingValid)
	assert.Equal(t, 64, listing.Items[0].EmbeddingDimension)
	assert.Greater(t, listing.Items[0].TokenCount, 0)
}
