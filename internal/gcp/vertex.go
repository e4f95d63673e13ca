package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/receiptsllc/sheriffsale/internal/services"
)

const PropertySystemPrompt = "You are a document parser for county sheriff sale listings. You read a single PDF page and return every property listed on it as structured JSON. You never invent values that are not printed on the page."

// PropertyUserPrompt lists the field names the model must use. They match the
// labels of the custom extraction model the listings were originally trained on.
var PropertyUserPrompt = fmt.Sprintf(`You will be provided with one page of a sheriff sale listing.

Return a JSON array with one object per property on the page. Each object must have exactly these keys:
%s

Rules:
1. Copy values exactly as printed. Keep multi-line values on one line separated by spaces.
2. Use null for a key whose value is not on the page.
3. "Tracts" is the number of tracts as printed, e.g. "1".
4. If the page lists no properties, return [].
Return only the JSON array.`, strings.Join(services.ExtractedFields, ", "))

// VertexClient holds the configured property model.
type VertexClient struct {
	PropertyModel *genai.GenerativeModel
	baseClient    *genai.Client
}

// NewVertexClient creates a client with a JSON-mode model for property extraction.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(PropertySystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexClient{PropertyModel: model, baseClient: baseClient}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// PropertyExtractor reads stored pages with Gemini on Vertex AI.
type PropertyExtractor struct {
	client *VertexClient
}

var _ services.PropertyExtractor = (*PropertyExtractor)(nil)

func NewPropertyExtractor(client *VertexClient) *PropertyExtractor {
	return &PropertyExtractor{client: client}
}

// Extract sends the gs:// page to the model and decodes the returned array.
func (e *PropertyExtractor) Extract(ctx context.Context, documentURL string) ([]services.RawProperty, error) {
	logCtx := slog.With("gcsUri", documentURL)
	filePart := genai.FileData{
		MIMEType: "application/pdf",
		FileURI:  documentURL,
	}
	resp, err := e.client.PropertyModel.GenerateContent(ctx, filePart, genai.Text(PropertyUserPrompt))
	if err != nil {
		logCtx.Error("Error calling Vertex AI.", "error", err)
		return nil, classifyVertexError(err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, &services.UnprocessableInputError{Err: errors.New("empty model response")}
	}
	props, err := DecodeProperties(text)
	if err != nil {
		logCtx.Warn("Model returned unparseable properties.", "error", err)
		return nil, &services.UnprocessableInputError{Err: err}
	}
	return props, nil
}

// DecodeProperties accepts a JSON array of objects, a single property object
// or an object wrapping the array under one key such as "properties". An
// object with none of the extracted fields is rejected.
func DecodeProperties(text string) ([]services.RawProperty, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		var props []services.RawProperty
		if err := json.Unmarshal([]byte(text), &props); err != nil {
			return nil, fmt.Errorf("failed to decode property array: %w", err)
		}
		return props, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode property object: %w", err)
	}
	for _, name := range services.ExtractedFields {
		if _, ok := fields[name]; ok {
			var one services.RawProperty
			if err := json.Unmarshal([]byte(text), &one); err != nil {
				return nil, fmt.Errorf("failed to decode property object: %w", err)
			}
			return []services.RawProperty{one}, nil
		}
	}
	if len(fields) == 1 {
		for key, inner := range fields {
			var props []services.RawProperty
			if err := json.Unmarshal(inner, &props); err != nil {
				return nil, fmt.Errorf("failed to decode properties under %q: %w", key, err)
			}
			return props, nil
		}
	}
	return nil, errors.New("object carries no property fields")
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	s := strings.TrimSpace(sb.String())
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// classifyVertexError separates page rejections from service failures.
func classifyVertexError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &services.UnprocessableInputError{Err: err}
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition:
		return &services.UnprocessableInputError{Err: err}
	default:
		return &services.ExtractorServiceError{Err: err}
	}
}
