package sink

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/okharin/mv-parser/internal/scrape"
)

// SubmitterConfig controls the product-card API client.
type SubmitterConfig struct {
	URL     string
	Timeout time.Duration
	// MaxRetries bounds additional attempts for transport errors and 5xx
	// responses. 4xx rejections are final.
	MaxRetries int
	// UserAgents are rotated per submission when non-empty.
	UserAgents []string
}

// Submitter posts parsed products to the product-card intake API.
type Submitter struct {
	cfg    SubmitterConfig
	client *resty.Client
	logger *zap.Logger
}

// NewSubmitter builds a Submitter. Retries cover transport errors and
// server-side failures; client rejections are final.
func NewSubmitter(cfg SubmitterConfig, logger *zap.Logger) *Submitter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &Submitter{cfg: cfg, client: client, logger: logger}
}

// Submit posts one product card. A non-2xx response after retries is an
// error; the caller decides whether that fails the run.
func (s *Submitter) Submit(ctx context.Context, product scrape.Product) error {
	req := s.client.R().
		SetContext(ctx).
		SetBody(payloadFor(product))
	if ua := s.userAgent(); ua != "" {
		req.SetHeader("User-Agent", ua)
	}
	resp, err := req.Post(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("post product card %q: %w", product.Code, err)
	}
	if resp.IsError() {
		return fmt.Errorf("product card API status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	s.logger.Debug("product card accepted",
		zap.String("code", product.Code),
		zap.Int("status", resp.StatusCode()))
	return nil
}

func (s *Submitter) userAgent() string {
	if len(s.cfg.UserAgents) == 0 {
		return ""
	}
	return s.cfg.UserAgents[rand.Intn(len(s.cfg.UserAgents))]
}

type submission struct {
	ProductInfo   string         `json:"product_info"`
	EAN           string         `json:"ean"`
	Source        string         `json:"source"`
	TemplateID    int            `json:"template_id"`
	Images        string         `json:"img"`
	ParsingResult map[string]any `json:"parsing_result"`
	CheckResult   map[string]any `json:"check_result"`
}

// payloadFor flattens a product into the intake format: a plain-text
// product_info block with one "name: value" line per attribute, and image
// URLs joined into a single comma-separated field.
func payloadFor(product scrape.Product) submission {
	lines := make([]string, 0, len(product.Attributes)+2)
	lines = append(lines, "Артикул: "+product.Code)
	lines = append(lines, "Наименование: "+product.Name)
	for _, attr := range product.Attributes {
		lines = append(lines, attr.Name+": "+attr.Value)
	}
	return submission{
		ProductInfo:   strings.Join(lines, "\n"),
		EAN:           product.Code,
		Source:        "МВидео",
		TemplateID:    0,
		Images:        strings.Join(product.Images, ", "),
		ParsingResult: map[string]any{},
		CheckResult:   map[string]any{},
	}
}
