package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"net/http"
	"strings"

	_ "image/gif"
	_ "image/png"

	"github.com/erp/docledger/internal/application/pipeline"
	infraconfig "github.com/erp/docledger/internal/infrastructure/config"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Ensure OpenAISplitter implements pipeline.ReceiptSplitter
var _ pipeline.ReceiptSplitter = (*OpenAISplitter)(nil)

// splitterPrompt asks the vision model for receipt bounding boxes in
// relative coordinates so the crop is independent of image resolution.
const splitterPrompt = `You are a scan layout analyzer for bookkeeping.
The image is a scanned page that may contain one or several separate receipts or invoices.
Return ONLY a JSON object:
{
  "receipts": [
    {"left": 0.0-1.0, "top": 0.0-1.0, "right": 0.0-1.0, "bottom": 0.0-1.0}
  ]
}
Coordinates are fractions of image width and height. List one box per physically
distinct document. A page holding a single document returns exactly one box.`

type splitResponse struct {
	Receipts []splitBox `json:"receipts"`
}

type splitBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// OpenAISplitter detects scans holding several receipts and cuts them into
// per-receipt images. It shares the classifier's model endpoint. Only raster
// scans are inspected; PDFs pass through as single documents.
type OpenAISplitter struct {
	client     *openai.Client
	model      string
	maxRetries int
	logger     *zap.Logger
}

// OpenAISplitterOption is a functional option for configuring OpenAISplitter
type OpenAISplitterOption func(*OpenAISplitter)

// WithSplitterLogger sets a custom logger for OpenAISplitter
func WithSplitterLogger(logger *zap.Logger) OpenAISplitterOption {
	return func(s *OpenAISplitter) {
		s.logger = logger
	}
}

// NewOpenAISplitter creates a receipt split detector from the classifier
// configuration
func NewOpenAISplitter(cfg *infraconfig.ClassifierConfig, opts ...OpenAISplitterOption) (*OpenAISplitter, error) {
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

	splitter := &OpenAISplitter{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		maxRetries: cfg.MaxRetries,
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(splitter)
	}

	return splitter, nil
}

// Detect asks the vision model for document boundaries and crops each one
// out. A single-receipt scan returns no segments.
func (s *OpenAISplitter) Detect(ctx context.Context, fileName string, data []byte, contentType string) ([]pipeline.Segment, error) {
	if !croppable(data) {
		return nil, nil
	}

	boxes, err := s.detectBoxes(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(boxes) <= 1 {
		return nil, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("scan not decodable for cropping: %w", err)
	}

	base := strings.TrimSuffix(fileName, extension(fileName))
	segments := make([]pipeline.Segment, 0, len(boxes))
	for i, box := range boxes {
		crop, ok := cropBox(img, box)
		if !ok {
			s.logger.Warn("degenerate receipt box skipped",
				zap.String("file_name", fileName),
				zap.Int("index", i),
			)
			continue
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("crop encode failed: %w", err)
		}
		segments = append(segments, pipeline.Segment{
			FileName: fmt.Sprintf("%s-part%d.jpg", base, i+1),
			Data:     buf.Bytes(),
		})
	}

	if len(segments) <= 1 {
		return nil, nil
	}
	return segments, nil
}

// detectBoxes runs the vision request with retries mirroring the classifier
func (s *OpenAISplitter) detectBoxes(ctx context.Context, data []byte) ([]splitBox, error) {
	mime := sniffImageMIME(data)
	dataURI := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))

	req := openai.ChatCompletionRequest{
		Model: s.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: splitterPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Locate every separate document on this page."},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURI},
					},
				},
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("chat completion failed: %w", err)
			s.logger.Warn("split detection attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("chat completion returned no choices")
			continue
		}

		var wire splitResponse
		if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &wire); err != nil {
			lastErr = fmt.Errorf("malformed split JSON: %w", err)
			continue
		}
		return wire.Receipts, nil
	}
	return nil, lastErr
}

// croppable reports whether the bytes are a raster format the stdlib image
// decoders handle
func croppable(data []byte) bool {
	switch http.DetectContentType(data) {
	case "image/png", "image/jpeg", "image/gif":
		return true
	}
	return false
}

// cropBox cuts the relative box out of the image. Boxes are clamped to the
// image; a box thinner than 5% of either dimension is rejected as noise.
func cropBox(img image.Image, box splitBox) (image.Image, bool) {
	bounds := img.Bounds()
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	rect := image.Rect(
		bounds.Min.X+int(clamp01(box.Left)*w),
		bounds.Min.Y+int(clamp01(box.Top)*h),
		bounds.Min.X+int(clamp01(box.Right)*w),
		bounds.Min.Y+int(clamp01(box.Bottom)*h),
	).Intersect(bounds)

	if float64(rect.Dx()) < 0.05*w || float64(rect.Dy()) < 0.05*h {
		return nil, false
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(crop, crop.Bounds(), img, rect.Min, draw.Src)
	return crop, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// extension returns the file extension including the dot, or ""
func extension(fileName string) string {
	if idx := strings.LastIndex(fileName, "."); idx >= 0 {
		return fileName[idx:]
	}
	return ""
}
