package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"policy-graph/pkg/logger"
)

const pageSize = 100

// RAGFlowClient reads a RAGFlow dataset over its v1 HTTP API. Parsing and
// chunking happen inside RAGFlow; a document's full text is reconstituted
// by joining its chunk contents.
type RAGFlowClient struct {
	baseURL   string
	apiKey    string
	datasetID string
	http      *http.Client
	logger    *zap.Logger
}

// NewRAGFlowClient creates a client for one dataset
func NewRAGFlowClient(baseURL, apiKey, datasetID string, timeout time.Duration) *RAGFlowClient {
	return &RAGFlowClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		datasetID: datasetID,
		http:      &http.Client{Timeout: timeout},
		logger:    logger.Get(),
	}
}

type listDocsResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Docs  []Document `json:"docs"`
		Total int        `json:"total"`
	} `json:"data"`
}

type listChunksResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Chunks []struct {
			Content string `json:"content"`
		} `json:"chunks"`
		Total int `json:"total"`
	} `json:"data"`
}

// ListDocuments enumerates every document of the dataset
func (c *RAGFlowClient) ListDocuments(ctx context.Context) ([]Document, error) {
	var all []Document
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/api/v1/datasets/%s/documents?page=%d&page_size=%d",
			c.baseURL, c.datasetID, page, pageSize)

		var resp listDocsResponse
		if err := c.get(ctx, url, &resp); err != nil {
			return nil, err
		}
		if resp.Code != 0 {
			return nil, fmt.Errorf("ragflow list documents: code %d: %s", resp.Code, resp.Message)
		}

		all = append(all, resp.Data.Docs...)
		if len(resp.Data.Docs) < pageSize {
			break
		}
	}

	c.logger.Debug("listed ragflow documents",
		zap.String("dataset", c.datasetID),
		zap.Int("count", len(all)),
	)
	return all, nil
}

// DocumentContent fetches a document's chunks and joins them into the full
// text, in chunk order
func (c *RAGFlowClient) DocumentContent(ctx context.Context, id string) (string, error) {
	var parts []string
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/api/v1/datasets/%s/documents/%s/chunks?page=%d&page_size=%d",
			c.baseURL, c.datasetID, id, page, pageSize)

		var resp listChunksResponse
		if err := c.get(ctx, url, &resp); err != nil {
			return "", err
		}
		if resp.Code != 0 {
			return "", fmt.Errorf("ragflow list chunks: code %d: %s", resp.Code, resp.Message)
		}

		for _, chunk := range resp.Data.Chunks {
			if chunk.Content != "" {
				parts = append(parts, chunk.Content)
			}
		}
		if len(resp.Data.Chunks) < pageSize {
			break
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func (c *RAGFlowClient) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ragflow request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ragflow returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ragflow response: %w", err)
	}
	return nil
}
