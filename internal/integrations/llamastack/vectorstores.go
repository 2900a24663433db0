package llamastack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// VectorStore is an OpenAI-compatible vector store.
type VectorStore struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status,omitempty"`
	CreatedAt  int64  `json:"created_at,omitempty"`
	UsageBytes int64  `json:"usage_bytes,omitempty"`
	FileCounts struct {
		Total      int `json:"total"`
		Completed  int `json:"completed"`
		InProgress int `json:"in_progress"`
		Failed     int `json:"failed"`
	} `json:"file_counts"`
}

// CreateVectorStoreRequest is the body of POST /v1/vector_stores.
type CreateVectorStoreRequest struct {
	Name               string   `json:"name"`
	FileIDs            []string `json:"file_ids,omitempty"`
	EmbeddingModel     string   `json:"embedding_model,omitempty"`
	EmbeddingDimension int      `json:"embedding_dimension,omitempty"`
	ProviderID         string   `json:"provider_id,omitempty"`
}

// File is an uploaded file.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
	Purpose  string `json:"purpose"`
}

// VectorStoreFile links a file to a store.
type VectorStoreFile struct {
	ID            string `json:"id"`
	VectorStoreID string `json:"vector_store_id"`
	Status        string `json:"status"`
}

// SearchHit is one chunk returned by a vector store search.
type SearchHit struct {
	FileID   string        `json:"file_id"`
	Filename string        `json:"filename"`
	Score    float64       `json:"score"`
	Content  []ContentPart `json:"content"`
}

// Text joins the hit's text parts.
func (h SearchHit) Text() string {
	parts := make([]string, 0, len(h.Content))
	for _, c := range h.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

func (c *Client) ListVectorStores(ctx context.Context) ([]VectorStore, error) {
	stores, err := list[VectorStore](ctx, c, "/vector_stores", nil)
	if err != nil {
		return nil, fmt.Errorf("llamastack: list vector stores: %w", err)
	}
	return stores, nil
}

// FindVectorStoreByName returns the first store named name, or false.
func (c *Client) FindVectorStoreByName(ctx context.Context, name string) (VectorStore, bool, error) {
	stores, err := c.ListVectorStores(ctx)
	if err != nil {
		return VectorStore{}, false, err
	}
	for _, vs := range stores {
		if vs.Name == name {
			return vs, true, nil
		}
	}
	return VectorStore{}, false, nil
}

func (c *Client) CreateVectorStore(ctx context.Context, req CreateVectorStoreRequest) (VectorStore, error) {
	if strings.TrimSpace(req.Name) == "" {
		return VectorStore{}, errors.New("llamastack: vector store name is required")
	}
	var out VectorStore
	if err := c.do(ctx, http.MethodPost, "/vector_stores", nil, req, &out); err != nil {
		return VectorStore{}, fmt.Errorf("llamastack: create vector store %q: %w", req.Name, err)
	}
	return out, nil
}

func (c *Client) DeleteVectorStore(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("llamastack: vector store id is required")
	}
	if err := c.do(ctx, http.MethodDelete, "/vector_stores/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("llamastack: delete vector store %q: %w", id, err)
	}
	return nil
}

// SearchVectorStore returns up to maxResults chunks relevant to query.
func (c *Client) SearchVectorStore(ctx context.Context, id, query string, maxResults int) ([]SearchHit, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("llamastack: vector store id is required")
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	body := map[string]any{"query": query, "max_num_results": maxResults}
	var out struct {
		Data []SearchHit `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/vector_stores/"+url.PathEscape(id)+"/search", nil, body, &out); err != nil {
		return nil, fmt.Errorf("llamastack: search vector store %q: %w", id, err)
	}
	return out.Data, nil
}

// UploadFile uploads content for use by vector stores (purpose "assistants").
func (c *Client) UploadFile(ctx context.Context, filename string, content io.Reader) (File, error) {
	if strings.TrimSpace(filename) == "" {
		return File{}, errors.New("llamastack: filename is required")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return File{}, fmt.Errorf("llamastack: upload %q: %w", filename, err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return File{}, fmt.Errorf("llamastack: upload %q: %w", filename, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return File{}, fmt.Errorf("llamastack: upload %q: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return File{}, fmt.Errorf("llamastack: upload %q: %w", filename, err)
	}

	target := c.api.URL("/v1/files", nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return File{}, fmt.Errorf("llamastack: upload %q: create request: %w", filename, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out File
	if err := c.api.Send(req, target, &out); err != nil {
		return File{}, fmt.Errorf("llamastack: upload %q: %w", filename, err)
	}
	return out, nil
}

// AttachFile adds an uploaded file to a vector store.
func (c *Client) AttachFile(ctx context.Context, storeID, fileID string) (VectorStoreFile, error) {
	if strings.TrimSpace(storeID) == "" || strings.TrimSpace(fileID) == "" {
		return VectorStoreFile{}, errors.New("llamastack: vector store id and file id are required")
	}
	var out VectorStoreFile
	body := map[string]string{"file_id": fileID}
	if err := c.do(ctx, http.MethodPost, "/vector_stores/"+url.PathEscape(storeID)+"/files", nil, body, &out); err != nil {
		return VectorStoreFile{}, fmt.Errorf("llamastack: attach file %q to %q: %w", fileID, storeID, err)
	}
	return out, nil
}

// ListVectorStoreFiles lists the files attached to a store.
func (c *Client) ListVectorStoreFiles(ctx context.Context, storeID string) ([]VectorStoreFile, error) {
	files, err := list[VectorStoreFile](ctx, c, "/vector_stores/"+url.PathEscape(storeID)+"/files", nil)
	if err != nil {
		return nil, fmt.Errorf("llamastack: list files of %q: %w", storeID, err)
	}
	return files, nil
}
