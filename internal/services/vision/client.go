package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"collider/internal/jobs"
	"collider/internal/services"
)

const defaultHTTPTimeout = 120 * time.Second

// estimatePrompt asks the model for raw JSON physics attributes. The facing
// hint mirrors what the render script expects on its command line.
const estimatePrompt = `Look at this object. Estimate its physics properties and visual orientation.
Return ONLY a raw JSON object (no markdown) with these keys:
"mass": number (kg),
"bounciness": number (0.0 to 0.95),
"friction": number (0.0 to 1.0),
"facing": string (one of: "left", "right", "front").

Note: If the object is facing the left side of the image, return "left".
If it faces the right side, return "right".`

// Config captures the runtime settings required to talk to the estimation API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client wraps the property-estimation REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (primarily for tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an estimation client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// rawEstimate tolerates partially populated responses; missing fields fall
// back to defaults during conversion.
type rawEstimate struct {
	Mass       *float64 `json:"mass"`
	Bounciness *float64 `json:"bounciness"`
	Friction   *float64 `json:"friction"`
	Facing     *string  `json:"facing"`
}

// EstimateProperties sends one object image to the estimation API and parses
// the returned physics attributes. Fields the model omits or mangles fall back
// to the documented defaults; transport failures and unparseable responses are
// reported as collaborator errors.
func (c *Client) EstimateProperties(ctx context.Context, imagePath string) (jobs.ObjectProperties, error) {
	empty := jobs.ObjectProperties{}
	if c.cfg.APIKey == "" {
		return empty, services.Wrap(services.ErrExternalTool, jobs.StageAnalysis, "estimate", "api key required", nil)
	}

	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return empty, services.Wrap(services.ErrExternalTool, jobs.StageAnalysis, "read image", imagePath, err)
	}

	payload := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: estimatePrompt},
				{InlineData: &inlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(imageData),
				}},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return empty, fmt.Errorf("marshal estimate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return empty, fmt.Errorf("build estimate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		marker := services.ErrExternalTool
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return empty, services.Wrap(marker, jobs.StageAnalysis, "estimate", "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return empty, services.Wrap(services.ErrExternalTool, jobs.StageAnalysis, "estimate", "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := fmt.Sprintf("http %d: %s", resp.StatusCode, summarize(respBody))
		return empty, services.Wrap(services.ErrExternalTool, jobs.StageAnalysis, "estimate", detail, nil)
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return empty, services.Wrap(services.ErrExternalTool, jobs.StageAnalysis, "estimate", "malformed response", err)
	}
	if parsed.Error != nil {
		return empty, services.Wrap(services.ErrExternalTool, jobs.StageAnalysis, "estimate", parsed.Error.Message, nil)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return empty, services.Wrap(services.ErrExternalTool, jobs.StageAnalysis, "estimate", "empty candidates", nil)
	}

	text := stripCodeFences(parsed.Candidates[0].Content.Parts[0].Text)
	var raw rawEstimate
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return empty, services.Wrap(services.ErrExternalTool, jobs.StageAnalysis, "estimate", "unparseable estimate payload", err)
	}

	return raw.toProperties(), nil
}

// toProperties applies per-field fallback defaults and clamps out-of-range
// values to what the render script accepts.
func (r rawEstimate) toProperties() jobs.ObjectProperties {
	props := jobs.DefaultObjectProperties()
	if r.Mass != nil && *r.Mass > 0 {
		props.Mass = *r.Mass
	}
	if r.Bounciness != nil && *r.Bounciness >= 0 {
		props.Bounciness = clamp(*r.Bounciness, 0, 0.95)
	}
	if r.Friction != nil && *r.Friction >= 0 {
		props.Friction = clamp(*r.Friction, 0, 1)
	}
	if r.Facing != nil {
		switch strings.ToLower(strings.TrimSpace(*r.Facing)) {
		case jobs.FacingLeft:
			props.Facing = jobs.FacingLeft
		case jobs.FacingRight:
			props.Facing = jobs.FacingRight
		case jobs.FacingFront:
			props.Facing = jobs.FacingFront
		}
	}
	return props
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func stripCodeFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

func summarize(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}
