// Package ai provides the OCR and classification gateways backing the
// document pipeline.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/erp/docledger/internal/application/pipeline"
	infraconfig "github.com/erp/docledger/internal/infrastructure/config"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// MaxDocumentSizeBytes is the maximum document size Document AI accepts (20MB)
const MaxDocumentSizeBytes = 20 * 1024 * 1024

// Ensure DocumentAIOCR implements pipeline.OCRService
var _ pipeline.OCRService = (*DocumentAIOCR)(nil)

// DocumentAIOCR extracts raw text from scanned documents using Google
// Document AI. Only the OCR text layer is consumed here; field extraction
// happens downstream in the classifier.
type DocumentAIOCR struct {
	client        *documentai.DocumentProcessorClient
	processorName string
	logger        *zap.Logger
}

// DocumentAIOCROption is a functional option for configuring DocumentAIOCR
type DocumentAIOCROption func(*DocumentAIOCR)

// WithOCRLogger sets a custom logger for DocumentAIOCR
func WithOCRLogger(logger *zap.Logger) DocumentAIOCROption {
	return func(o *DocumentAIOCR) {
		o.logger = logger
	}
}

// NewDocumentAIOCR creates a Document AI text extraction gateway. Locations
// other than "us" route to the regional endpoint.
func NewDocumentAIOCR(ctx context.Context, cfg *infraconfig.OCRConfig, opts ...DocumentAIOCROption) (*DocumentAIOCR, error) {
	if cfg == nil {
		return nil, errors.New("OCR configuration is required")
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("OCR project ID is required")
	}
	if cfg.ProcessorID == "" {
		return nil, errors.New("OCR processor ID is required")
	}

	location := cfg.Location
	if location == "" {
		location = "eu"
	}

	var clientOptions []option.ClientOption
	if location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	if cfg.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client for location %s: %w", location, err)
	}

	ocr := &DocumentAIOCR{
		client: client,
		processorName: fmt.Sprintf("projects/%s/locations/%s/processors/%s",
			cfg.ProjectID, location, cfg.ProcessorID),
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(ocr)
	}

	return ocr, nil
}

// ExtractText runs the document through the processor and returns the raw
// text layer
func (o *DocumentAIOCR) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("document is empty")
	}
	if len(data) > MaxDocumentSizeBytes {
		return "", fmt.Errorf("document size %d exceeds the %d byte limit", len(data), MaxDocumentSizeBytes)
	}
	if contentType == "" {
		contentType = "application/pdf"
	}

	resp, err := o.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: o.processorName,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: contentType,
			},
		},
	})
	if err != nil {
		return "", o.translateError(err)
	}
	if resp.Document == nil {
		return "", errors.New("Document AI returned no document")
	}

	text := resp.Document.Text
	o.logger.Debug("OCR extraction completed",
		zap.Int("input_bytes", len(data)),
		zap.Int("text_length", len(text)),
	)
	return text, nil
}

// translateError maps Document AI status strings to actionable errors
func (o *DocumentAIOCR) translateError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "PERMISSION_DENIED"):
		return fmt.Errorf("insufficient permissions for Document AI: %w", err)
	case strings.Contains(msg, "QUOTA_EXCEEDED") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("Document AI quota exceeded: %w", err)
	case strings.Contains(msg, "NOT_FOUND"):
		return fmt.Errorf("Document AI processor %s not found: %w", o.processorName, err)
	case strings.Contains(msg, "INVALID_ARGUMENT"):
		return fmt.Errorf("document format not supported or corrupted: %w", err)
	default:
		return fmt.Errorf("Document AI processing failed: %w", err)
	}
}

// Close closes the underlying Document AI client
func (o *DocumentAIOCR) Close() error {
	if o.client != nil {
		return o.client.Close()
	}
	return nil
}
