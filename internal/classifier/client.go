package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/pkg/types"
)

const (
	defaultModel = "claude-3-5-haiku-latest"
	apiVersion   = "2023-06-01"
	maxTokens    = 16
)

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client classifies messages with the Claude Messages API.
type Client struct {
	apiKey       string
	url          string
	model        string
	maxBodyChars int
	client       *http.Client
	logger       *logrus.Logger
}

// New returns the oracle described by cfg: a Client when an API key is
// configured, Disabled otherwise.
func New(cfg config.ClassifierConfig, logger *logrus.Logger) Oracle {
	if cfg.APIKey == "" {
		logger.Info("Classifier not configured, all messages will be Uncategorized")
		return Disabled{}
	}
	return NewClient(cfg, logger)
}

// NewClient creates a Claude-backed classifier.
func NewClient(cfg config.ClassifierConfig, logger *logrus.Logger) *Client {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:       cfg.APIKey,
		url:          cfg.URL,
		model:        model,
		maxBodyChars: cfg.MaxBodyChars,
		client:       &http.Client{Timeout: cfg.Timeout},
		logger:       logger,
	}
}

// Classify implements Oracle.
func (c *Client) Classify(ctx context.Context, subject, body string) (types.Category, error) {
	reqBody := apiRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    systemPrompt(),
		Messages: []apiMessage{
			{Role: "user", Content: userPrompt(subject, Truncate(body, c.maxBodyChars))},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ClassificationError{Reason: "marshaling request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &ClassificationError{Reason: "creating request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ClassificationError{Reason: "calling API", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ClassificationError{Reason: "reading response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", &ClassificationError{Reason: fmt.Sprintf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)}
		}
		return "", &ClassificationError{Reason: fmt.Sprintf("API error (%d): %s", resp.StatusCode, string(respBody))}
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &ClassificationError{Reason: "decoding response", Err: err}
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	category, ok := types.ParseCategory(text.String())
	if !ok {
		return "", &ClassificationError{Reason: fmt.Sprintf("unknown label %q", text.String())}
	}

	c.logger.WithField("category", category).Debug("Message classified")
	return category, nil
}

func systemPrompt() string {
	labels := make([]string, len(types.Categories))
	for i, c := range types.Categories {
		labels[i] = string(c)
	}

	var sb strings.Builder
	sb.WriteString("You classify inbound sales and outreach email replies. ")
	sb.WriteString("Answer with exactly one of these labels and nothing else: ")
	sb.WriteString(strings.Join(labels, ", "))
	sb.WriteString(".\n\n")
	sb.WriteString("Interested: the sender wants to continue the conversation or learn more.\n")
	sb.WriteString("Meeting Booked: a meeting or call has been scheduled or confirmed.\n")
	sb.WriteString("Not Interested: the sender declines or asks not to be contacted.\n")
	sb.WriteString("Spam: unsolicited bulk or promotional mail.\n")
	sb.WriteString("Out of Office: an automatic absence reply.\n")
	sb.WriteString("Uncategorized: none of the above.")
	return sb.String()
}

func userPrompt(subject, body string) string {
	return fmt.Sprintf("Subject: %s\n\n%s", subject, body)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
