package errors

import (
	"fmt"
	"net/http"
)

// Code pairs a business error code with its HTTP status and default message.
type Code struct {
	Code    int
	Status  int
	Message string
}

const (
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Chatbot errors (2000-2999)
	ErrChatbotNotFound = 2000

	// RAG / knowledge base errors (4000-4999)
	ErrRAGKnowledgeBaseNotFound = 4000
	ErrRAGInvalidParams         = 4001
	ErrRAGEmptyDocument         = 4002
	ErrRAGProcessingFailed      = 4003
	ErrRAGStorageFailed         = 4004
	ErrRAGEmbeddingFailed       = 4005
	ErrRAGSynthesisFailed       = 4006
	ErrRAGInvalidFileType       = 4007
	ErrRAGFileTooLarge          = 4008
	ErrRAGFetchFailed           = 4009
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	ErrChatbotNotFound: {ErrChatbotNotFound, http.StatusNotFound, "Chatbot not found"},

	ErrRAGKnowledgeBaseNotFound: {ErrRAGKnowledgeBaseNotFound, http.StatusNotFound, "Knowledge base not found"},
	ErrRAGInvalidParams:         {ErrRAGInvalidParams, http.StatusBadRequest, "Invalid knowledge base parameters"},
	ErrRAGEmptyDocument:         {ErrRAGEmptyDocument, http.StatusBadRequest, "Document content is empty"},
	ErrRAGProcessingFailed:      {ErrRAGProcessingFailed, http.StatusInternalServerError, "Document processing failed"},
	ErrRAGStorageFailed:         {ErrRAGStorageFailed, http.StatusInternalServerError, "Storage operation failed"},
	ErrRAGEmbeddingFailed:       {ErrRAGEmbeddingFailed, http.StatusInternalServerError, "Embedding generation failed"},
	ErrRAGSynthesisFailed:       {ErrRAGSynthesisFailed, http.StatusInternalServerError, "Answer synthesis failed"},
	ErrRAGInvalidFileType:       {ErrRAGInvalidFileType, http.StatusBadRequest, "Unsupported file type"},
	ErrRAGFileTooLarge:          {ErrRAGFileTooLarge, http.StatusBadRequest, "File size exceeds limit"},
	ErrRAGFetchFailed:           {ErrRAGFetchFailed, http.StatusBadGateway, "Failed to fetch URL content"},
}

// GetCode returns the Code entry for a business code.
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns the HTTP status for a business code.
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the default message for a business code.
func GetMessage(code int) string {
	return GetCode(code).Message
}

// FormatError formats a message with optional details.
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
