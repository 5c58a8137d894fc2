package remote

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/infrastructure/resilience"
)

// DefaultMaxLength is the token truncation limit sent with every request.
const DefaultMaxLength = 128

const logitsPath = "/v1/logits"

// Client calls a sequence-classification model server. It implements
// ports.SequenceModel.
type Client struct {
	baseURL    string
	model      string
	maxLength  int
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout   time.Duration
	MaxLength int
	Executor  *resilience.Executor
}

func New(baseURL, model string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		maxLength:  maxLength,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

type logitsRequest struct {
	Model     string `json:"model,omitempty"`
	Text      string `json:"text"`
	MaxLength int    `json:"max_length"`
}

type logitsResponse struct {
	Logits   []float64         `json:"logits"`
	ID2Label map[string]string `json:"id2label"`
}

// Logits returns raw class scores and the label names the server reports,
// keyed by class index. The label map may be empty.
func (c *Client) Logits(ctx context.Context, text string) ([]float64, map[int]string, error) {
	request := logitsRequest{Model: c.model, Text: text, MaxLength: c.maxLength}

	var response logitsResponse
	call := func(callCtx context.Context) error {
		response = logitsResponse{}
		return c.postJSON(callCtx, logitsPath, request, &response, "logits")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "inference.logits", call, classifyInferenceError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, nil, resilience.WrapTemporary("inference logits", err, classifyInferenceError)
	}
	if len(response.Logits) == 0 {
		return nil, nil, fmt.Errorf("inference logits: empty logits in response")
	}

	labels := make(map[int]string, len(response.ID2Label))
	for key, name := range response.ID2Label {
		idx, convErr := strconv.Atoi(strings.TrimSpace(key))
		if convErr != nil {
			return nil, nil, domain.WrapError(domain.ErrBackendUnavailable, "inference logits", fmt.Errorf("invalid label index %q", key))
		}
		labels[idx] = name
	}
	return response.Logits, labels, nil
}
