package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/erp/docledger/internal/application/pipeline"
	"github.com/erp/docledger/internal/domain/document"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	infraconfig "github.com/erp/docledger/internal/infrastructure/config"
	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ensure OpenAIClassifier implements pipeline.Classifier
var _ pipeline.Classifier = (*OpenAIClassifier)(nil)

// systemPrompt instructs the model to return strict JSON matching the
// extraction schema. Amounts are strings so the model cannot emit float
// artifacts.
const systemPrompt = `You are an accounting document extraction engine for Nordic bookkeeping.
Given OCR text (and optionally a scan image) of a financial document, return ONLY a JSON object:
{
  "document_type": "INVOICE" | "RECEIPT" | "CREDIT_NOTE" | "BANK_STATEMENT" | "UNKNOWN",
  "counterparty": "supplier or merchant name",
  "invoice_number": "exact invoice/receipt number or empty",
  "currency": "ISO 4217 code, e.g. SEK",
  "total_amount": "gross total as a decimal string, e.g. 1250.00",
  "vat_amount": "total VAT as a decimal string",
  "invoice_date": "YYYY-MM-DD or empty",
  "due_date": "YYYY-MM-DD or empty",
  "confidence": 0.0-1.0,
  "lines": [
    {"description": "...", "net_amount": "decimal string", "vat_amount": "decimal string",
     "account": "4-digit BAS account suggestion or empty", "confidence": 0.0-1.0}
  ]
}
Credit notes keep positive amounts. Line net+VAT sums must equal the total. Omit lines you cannot read reliably.`

// extractionResponse is the wire shape of the model's JSON answer
type extractionResponse struct {
	DocumentType  string           `json:"document_type"`
	Counterparty  string           `json:"counterparty"`
	InvoiceNumber string           `json:"invoice_number"`
	Currency      string           `json:"currency"`
	TotalAmount   string           `json:"total_amount"`
	VATAmount     string           `json:"vat_amount"`
	InvoiceDate   string           `json:"invoice_date"`
	DueDate       string           `json:"due_date"`
	Confidence    float64          `json:"confidence"`
	Lines         []extractionLine `json:"lines"`
}

type extractionLine struct {
	Description string  `json:"description"`
	NetAmount   string  `json:"net_amount"`
	VATAmount   string  `json:"vat_amount"`
	Account     string  `json:"account"`
	Confidence  float64 `json:"confidence"`
}

// OpenAIClassifier turns OCR text plus the original scan into extracted
// financial facts using an OpenAI chat completion
type OpenAIClassifier struct {
	client      *openai.Client
	model       string
	temperature float32
	maxRetries  int
	logger      *zap.Logger
}

// OpenAIClassifierOption is a functional option for configuring OpenAIClassifier
type OpenAIClassifierOption func(*OpenAIClassifier)

// WithClassifierLogger sets a custom logger for OpenAIClassifier
func WithClassifierLogger(logger *zap.Logger) OpenAIClassifierOption {
	return func(c *OpenAIClassifier) {
		c.logger = logger
	}
}

// NewOpenAIClassifier creates a classification gateway from configuration
func NewOpenAIClassifier(cfg *infraconfig.ClassifierConfig, opts ...OpenAIClassifierOption) (*OpenAIClassifier, error) {
	if cfg == nil {
		return nil, errors.New("classifier configuration is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("classifier API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}

	classifier := &OpenAIClassifier{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(classifier)
	}

	return classifier, nil
}

// Classify extracts financial facts from OCR text and the scan image
func (c *OpenAIClassifier) Classify(ctx context.Context, text string, image []byte) (*document.Classification, error) {
	if strings.TrimSpace(text) == "" && len(image) == 0 {
		return nil, errors.New("nothing to classify: no text and no image")
	}

	req := c.buildRequest(text, image)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("chat completion failed: %w", err)
			c.logger.Warn("classification attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("chat completion returned no choices")
			continue
		}

		classification, err := parseExtraction(resp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			c.logger.Warn("classification response rejected",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		return classification, nil
	}
	return nil, lastErr
}

// buildRequest assembles the chat request, attaching the scan as an inline
// image when the bytes are a supported raster format
func (c *OpenAIClassifier) buildRequest(text string, image []byte) openai.ChatCompletionRequest {
	userPrompt := "Extract the financial facts from this document.\n\nOCR TEXT:\n" + text

	userMessage := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	}

	if mime := sniffImageMIME(image); mime != "" {
		dataURI := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image))
		userMessage = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: userPrompt},
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: dataURI},
				},
			},
		}
	}

	return openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			userMessage,
		},
	}
}

// sniffImageMIME returns the image MIME type for raster formats the vision
// endpoint accepts, or "" when the bytes are not an attachable image
func sniffImageMIME(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	switch mime := http.DetectContentType(data); mime {
	case "image/png", "image/jpeg", "image/webp", "image/gif":
		return mime
	}
	return ""
}

// parseExtraction converts the model's JSON answer into a domain
// classification. The balance invariant is enforced here: a sub-minor-unit
// rounding residue is folded into the largest line, and lines that diverge
// further from the total are dropped so only the totals survive.
func parseExtraction(content string) (*document.Classification, error) {
	var wire extractionResponse
	if err := json.Unmarshal([]byte(stripFences(content)), &wire); err != nil {
		return nil, fmt.Errorf("malformed extraction JSON: %w", err)
	}

	total, err := parseAmount(wire.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid total_amount %q: %w", wire.TotalAmount, err)
	}
	vat, err := parseAmount(wire.VATAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid vat_amount %q: %w", wire.VATAmount, err)
	}

	classification := &document.Classification{
		DocumentType:  parseDocumentType(wire.DocumentType),
		Counterparty:  strings.TrimSpace(wire.Counterparty),
		InvoiceNumber: strings.TrimSpace(wire.InvoiceNumber),
		Currency:      parseCurrency(wire.Currency),
		TotalAmount:   total,
		VATAmount:     vat,
		Confidence:    wire.Confidence,
		InvoiceDate:   parseDate(wire.InvoiceDate),
		DueDate:       parseDate(wire.DueDate),
	}

	for _, l := range wire.Lines {
		net, err := parseAmount(l.NetAmount)
		if err != nil {
			continue
		}
		lineVAT, err := parseAmount(l.VATAmount)
		if err != nil {
			lineVAT = decimal.Zero
		}
		classification.Lines = append(classification.Lines, document.LineItem{
			Description: strings.TrimSpace(l.Description),
			NetAmount:   net,
			VATAmount:   lineVAT,
			Account:     strings.TrimSpace(l.Account),
			Confidence:  l.Confidence,
		})
	}

	if classification.Balanced() {
		classification.FoldResidue()
	} else {
		classification.Lines = nil
	}
	return classification, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// parseAmount parses a decimal string, tolerating thousands spaces and a
// comma decimal separator. An empty string parses to zero.
func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return decimal.Zero, nil
	}
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if strings.Contains(cleaned, ",") && !strings.Contains(cleaned, ".") {
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	return decimal.NewFromString(cleaned)
}

func parseDocumentType(s string) document.Type {
	switch document.Type(strings.ToUpper(strings.TrimSpace(s))) {
	case document.TypeInvoice:
		return document.TypeInvoice
	case document.TypeReceipt:
		return document.TypeReceipt
	case document.TypeCreditNote:
		return document.TypeCreditNote
	case document.TypeBankStatement:
		return document.TypeBankStatement
	}
	return document.TypeUnknown
}

func parseCurrency(s string) valueobject.Currency {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != 3 {
		return valueobject.DefaultCurrency
	}
	return valueobject.Currency(code)
}

func parseDate(s string) *time.Time {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "02.01.2006", "2006/01/02"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return &t
		}
	}
	return nil
}
