// Package formrecognizer extracts sheriff sale properties with an Azure Form
// Recognizer custom model. The service's submit-then-poll protocol is hidden
// behind one blocking Extract call bounded by the caller's context.
package formrecognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/receiptsllc/sheriffsale/internal/services"
)

const (
	DefaultAPIVersion   = "2022-08-31"
	DefaultPollInterval = 2 * time.Second

	// propertiesField is the array field of the custom model holding one
	// object per listed property.
	propertiesField = "property"
)

// Config configures a Client.
type Config struct {
	Endpoint     string
	Key          string
	ModelID      string
	APIVersion   string
	PollInterval time.Duration
	HTTPTimeout  time.Duration
}

// Client calls the document analysis REST API.
type Client struct {
	http    *resty.Client
	modelID string
	version string
	poll    *rate.Limiter
}

var _ services.PropertyExtractor = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Key == "" || cfg.ModelID == "" {
		return nil, fmt.Errorf("form recognizer endpoint, key and model id must be set")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetHeader("Ocp-Apim-Subscription-Key", cfg.Key).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.HTTPTimeout)

	return &Client{
		http:    hc,
		modelID: cfg.ModelID,
		version: cfg.APIVersion,
		poll:    rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
	}, nil
}

// Extract submits documentURL for analysis and waits for the result.
func (c *Client) Extract(ctx context.Context, documentURL string) ([]services.RawProperty, error) {
	logCtx := slog.With("documentUrl", documentURL, "modelId", c.modelID)

	opURL, err := c.submit(ctx, documentURL)
	if err != nil {
		return nil, err
	}
	logCtx.Debug("Analysis submitted.", "operation", opURL)

	body, err := c.await(ctx, opURL)
	if err != nil {
		return nil, err
	}
	props := ParseProperties(body)
	logCtx.Debug("Analysis complete.", "properties", len(props))
	return props, nil
}

func (c *Client) submit(ctx context.Context, documentURL string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("modelId", c.modelID).
		SetQueryParam("api-version", c.version).
		SetBody(map[string]string{"urlSource": documentURL}).
		Post("/formrecognizer/documentModels/{modelId}:analyze")
	if err != nil {
		return "", transportErr(ctx, err)
	}
	if resp.StatusCode() != http.StatusAccepted {
		return "", classifyResponse(resp.StatusCode(), resp.Body())
	}
	opURL := resp.Header().Get("Operation-Location")
	if opURL == "" {
		return "", &services.ExtractorServiceError{Err: errors.New("analyze response missing Operation-Location")}
	}
	return opURL, nil
}

// await polls opURL until the operation finishes or ctx is done. The poll
// limiter is shared by all calls on the client.
func (c *Client) await(ctx context.Context, opURL string) ([]byte, error) {
	for {
		if err := c.poll.Wait(ctx); err != nil {
			// Wait gives up early when the next poll would land past the deadline.
			if ctx.Err() == nil {
				return nil, context.DeadlineExceeded
			}
			return nil, ctx.Err()
		}
		resp, err := c.http.R().SetContext(ctx).Get(opURL)
		if err != nil {
			return nil, transportErr(ctx, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, classifyResponse(resp.StatusCode(), resp.Body())
		}

		body := resp.Body()
		switch status := gjson.GetBytes(body, "status").String(); status {
		case "succeeded":
			return body, nil
		case "failed":
			return nil, classifyFailure(body)
		case "notStarted", "running":
			continue
		default:
			return nil, &services.ExtractorServiceError{Err: fmt.Errorf("unexpected analysis status %q", status)}
		}
	}
}

// ParseProperties reads the property array of the first analyzed document.
// Each property is a map of field name to its string value; fields without a
// typed value fall back to their recognized content.
func ParseProperties(body []byte) []services.RawProperty {
	items := gjson.GetBytes(body, "analyzeResult.documents.0.fields."+propertiesField+".valueArray")
	var out []services.RawProperty
	items.ForEach(func(_, item gjson.Result) bool {
		raw := services.RawProperty{}
		item.Get("valueObject").ForEach(func(name, field gjson.Result) bool {
			if v := fieldValue(field); v != "" {
				raw[name.String()] = v
			}
			return true
		})
		out = append(out, raw)
		return true
	})
	return out
}

func fieldValue(field gjson.Result) string {
	for _, key := range []string{"valueString", "valuePhoneNumber", "valueNumber", "valueInteger", "valueDate", "content"} {
		if v := field.Get(key); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// Error codes that mean the page itself was rejected.
var unprocessableCodes = map[string]bool{
	"InvalidContent":           true,
	"InvalidContentDimensions": true,
	"InvalidContentLength":     true,
	"InvalidImage":             true,
	"InvalidPdf":               true,
	"UnsupportedContent":       true,
}

func errorCode(body []byte) (code, message string) {
	e := gjson.GetBytes(body, "error")
	code = e.Get("innererror.code").String()
	if code == "" {
		code = e.Get("code").String()
	}
	return code, e.Get("message").String()
}

func classifyResponse(statusCode int, body []byte) error {
	code, message := errorCode(body)
	err := fmt.Errorf("form recognizer returned %d %s: %s", statusCode, code, message)
	if (statusCode == http.StatusBadRequest || statusCode == http.StatusUnsupportedMediaType) && unprocessableCodes[code] {
		return &services.UnprocessableInputError{Err: err}
	}
	return &services.ExtractorServiceError{Err: err}
}

func classifyFailure(body []byte) error {
	code, message := errorCode(body)
	if code == "" {
		code, message = errorCode([]byte(gjson.GetBytes(body, "analyzeResult").Raw))
	}
	err := fmt.Errorf("analysis failed %s: %s", code, message)
	if unprocessableCodes[code] {
		return &services.UnprocessableInputError{Err: err}
	}
	return &services.ExtractorServiceError{Err: err}
}

func transportErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &services.ExtractorServiceError{Err: err}
}
