package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Translation is one target language rendering of a transcript.
type Translation struct {
	Primary          string   `json:"primary"`
	Alternatives     []string `json:"alternatives,omitempty"`
	DetectedLanguage string   `json:"detectedLanguage,omitempty"`
}

// Client talks to a LibreTranslate compatible service.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	log     zerolog.Logger
}

func New(base string, timeoutSec int, log zerolog.Logger) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 8
	}
	return &Client{
		base:    strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		timeout: time.Duration(timeoutSec) * time.Second,
		log:     log,
	}
}

// Timeout is the per-request budget the client was built with.
func (c *Client) Timeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.timeout
}

// Translate requests text in each of targets, one request per target.
// An empty source means auto-detection.
func (c *Client) Translate(ctx context.Context, text, source string, targets []string, altLimit int) (map[string]Translation, error) {
	out := make(map[string]Translation, len(targets))
	if c == nil || c.base == "" || len(targets) == 0 || strings.TrimSpace(text) == "" {
		return out, nil
	}

	src := strings.TrimSpace(source)
	if src == "" {
		src = "auto"
	}
	for _, tgt := range targets {
		tr, err := c.translateOne(ctx, text, src, tgt, altLimit)
		if err != nil {
			return nil, err
		}
		out[tgt] = tr
	}
	return out, nil
}

func (c *Client) translateOne(ctx context.Context, text, src, tgt string, altLimit int) (Translation, error) {
	payload := map[string]any{
		"q":      text,
		"source": src,
		"target": tgt,
		"format": "text",
	}
	if altLimit > 0 {
		payload["alternatives"] = altLimit
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Translation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/translate", bytes.NewReader(b))
	if err != nil {
		return Translation{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Translation{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Translation{}, fmt.Errorf("translation http %d for target %s", resp.StatusCode, tgt)
	}

	var lr struct {
		TranslatedText   string   `json:"translatedText"`
		Alternatives     []string `json:"alternatives"`
		DetectedLanguage json.RawMessage `json:"detectedLanguage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return Translation{}, fmt.Errorf("decode translation: %w", err)
	}

	tr := Translation{
		Primary:          strings.TrimSpace(lr.TranslatedText),
		DetectedLanguage: detectedLanguage(lr.DetectedLanguage),
	}
	for _, a := range lr.Alternatives {
		if s := strings.TrimSpace(a); s != "" {
			tr.Alternatives = append(tr.Alternatives, s)
		}
	}
	c.log.Debug().Str("target", tgt).Str("text", tr.Primary).Msg("translation: done")
	return tr, nil
}

// detectedLanguage accepts both the LibreTranslate object form
// ({"language":"en","confidence":90}) and a bare string.
func detectedLanguage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Language string `json:"language"`
	}
	_ = json.Unmarshal(raw, &obj)
	return obj.Language
}
