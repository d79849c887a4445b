package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"arrears-recon/internal/domain"

	"github.com/sirupsen/logrus"
)

type Document struct {
	Name      string
	MediaType string
	Data      []byte
}

// Extractor turns one source document into raw candidate records. It owns
// its retry policy and only returns once it has a result or gave up.
type Extractor interface {
	Extract(ctx context.Context, doc Document, cfg domain.YearConfig) ([]RawItem, error)
}

var (
	ErrRateLimited = errors.New("extraction rate limit exceeded")
	ErrUnavailable = errors.New("extraction service unavailable")
)

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("extraction api returned status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusServiceUnavailable ||
		mentionsRateLimit(e.Body)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests || mentionsRateLimit(e.Body):
		return ErrRateLimited
	case e.StatusCode == http.StatusServiceUnavailable:
		return ErrUnavailable
	}
	return nil
}

func mentionsRateLimit(s string) bool {
	return strings.Contains(s, "429") || strings.Contains(s, "RESOURCE_EXHAUSTED")
}

// IsRateLimited reports whether err is, or wraps, a quota failure. Errors
// from other layers are matched on their message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) || mentionsRateLimit(err.Error())
}

type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxRetries  int
	BaseBackoff time.Duration
	Timeout     time.Duration
}

type GeminiClient struct {
	cfg    ClientConfig
	http   *http.Client
	logger *logrus.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewGeminiClient(cfg ClientConfig, logger *logrus.Logger) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-3-flash-preview"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GeminiClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff is the wait before the given 1-based retry: 5s, 10s, 15s...
func (c *GeminiClient) Backoff(retry int) time.Duration {
	return time.Duration(retry) * c.cfg.BaseBackoff
}

func (c *GeminiClient) Extract(ctx context.Context, doc Document, cfg domain.YearConfig) ([]RawItem, error) {
	body, err := json.Marshal(buildRequest(doc, cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction request: %w", err)
	}

	for retry := 0; ; retry++ {
		items, err := c.call(ctx, body)
		if err == nil {
			return items, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.retryable() || retry >= c.cfg.MaxRetries {
			return nil, err
		}

		wait := c.Backoff(retry + 1)
		c.logger.WithFields(logrus.Fields{
			"module": "extraction",
			"source": doc.Name,
			"status": apiErr.StatusCode,
			"retry":  retry + 1,
		}).Warnf("rate limit hit, waiting %s before retry", wait)

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *GeminiClient) call(ctx context.Context, body []byte) ([]RawItem, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call extraction api: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode extraction response: %w", err)
	}

	items, err := DecodeItems(parsed.text())
	if err != nil {
		return nil, fmt.Errorf("failed to decode extracted records: %w", err)
	}
	return items, nil
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content      `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r generateResponse) text() string {
	var b strings.Builder
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

var recordSchema = map[string]any{
	"type": "ARRAY",
	"items": map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"nama": map[string]any{"type": "STRING", "description": "Nama Wajib Pajak"},
			"nop":  map[string]any{"type": "STRING", "description": "Nomor Objek Pajak"},
			"arrears": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"year": map[string]any{"type": "INTEGER"},
						"kurangBayar": map[string]any{
							"type":        "NUMBER",
							"description": "Nilai dari kolom Kurang Bayar. Jika LUNAS atau NIHIL, berikan 0.",
						},
					},
					"required": []string{"year", "kurangBayar"},
				},
			},
		},
		"required": []string{"nama", "nop", "arrears"},
	},
}

func prompt(cfg domain.YearConfig) string {
	return fmt.Sprintf(`Tugas: Ekstrak data piutang PBB-P2 dari gambar/dokumen ini ke format JSON.

INSTRUKSI KRITIKAL:
1. BACA BARIS DEMI BARIS: Pastikan 'Kurang Bayar' sesuai dengan 'Tahun' di baris yang sama.
2. FORMAT NOP: NOP biasanya '14.06.XX.XX.XXX-XXXX.X'.
3. MATA UANG: Ambil nilai numerik saja. Jika 'LUNAS', 'NIHIL', atau '0', isi 0.
4. TAHUN: Rentang %d - %d.`, cfg.Start, cfg.End)
}

func buildRequest(doc Document, cfg domain.YearConfig) generateRequest {
	return generateRequest{
		Contents: []content{{Parts: []part{
			{Text: prompt(cfg)},
			{InlineData: &inlineData{
				MimeType: doc.MediaType,
				Data:     base64.StdEncoding.EncodeToString(doc.Data),
			}},
		}}},
		GenerationConfig: map[string]any{
			"responseMimeType": "application/json",
			"responseSchema":   recordSchema,
		},
	}
}
