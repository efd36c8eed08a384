// Package docai wraps the Google Document AI processor used to extract
// typed entities from uploaded invoice PDFs.
package docai

import (
	"context"
	"fmt"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Entity is a typed span of extracted information, e.g. type "total_amount"
// with mention text "$450.00". Line items carry their sub-fields as
// properties.
type Entity struct {
	Type        string   `json:"type"`
	MentionText string   `json:"mention_text"`
	Properties  []Entity `json:"properties,omitempty"`
}

// Document is the normalized result of a document-understanding call.
type Document struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities"`
}

// Config identifies the Document AI processor to call.
type Config struct {
	ProjectID   string
	Location    string
	ProcessorID string
}

// Client wraps a Document AI processor client. One configured instance is
// created at startup and shared across pipeline runs.
type Client struct {
	client        *documentai.DocumentProcessorClient
	processorName string
	logger        *zap.Logger
}

// NewClient creates a Document AI client. Credentials come from Application
// Default Credentials.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create document AI client: %w", err)
	}

	return &Client{
		client: client,
		processorName: fmt.Sprintf("projects/%s/locations/%s/processors/%s",
			cfg.ProjectID, cfg.Location, cfg.ProcessorID),
		logger: logger,
	}, nil
}

// Process sends raw document bytes to the processor and returns the
// normalized document. A service response without a document object yields
// (nil, nil); callers treat that as a hard failure for the invoice.
func (c *Client) Process(ctx context.Context, content []byte, mimeType string) (*Document, error) {
	req := &documentaipb.ProcessRequest{
		Name: c.processorName,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: mimeType,
			},
		},
	}

	resp, err := c.client.ProcessDocument(ctx, req)
	if err != nil {
		c.logger.Error("Document AI call failed", zap.Error(err))
		return nil, fmt.Errorf("document AI call failed: %w", err)
	}

	doc := resp.GetDocument()
	if doc == nil {
		return nil, nil
	}

	normalized := &Document{Text: doc.GetText()}
	for _, e := range doc.GetEntities() {
		normalized.Entities = append(normalized.Entities, normalizeEntity(e))
	}

	c.logger.Debug("Document processed",
		zap.Int("entity_count", len(normalized.Entities)),
		zap.Int("text_length", len(normalized.Text)))

	return normalized, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}

func normalizeEntity(e *documentaipb.Document_Entity) Entity {
	out := Entity{
		Type:        e.GetType(),
		MentionText: e.GetMentionText(),
	}
	for _, p := range e.GetProperties() {
		out.Properties = append(out.Properties, normalizeEntity(p))
	}
	return out
}
