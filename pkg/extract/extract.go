package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/xhad/docdex/pkg/retry"
)

type ExtractorConfig struct {
	BaseURL string // conversion service endpoint, e.g. http://localhost:5001
	Timeout time.Duration
	Policy  retry.Policy
}

// Extractor sends PDF files to the text-extraction service and returns the
// raw text. The service is a black box that may fail or rate-limit; those
// failures are mapped onto the shared retry policy.
type Extractor struct {
	config ExtractorConfig
	client *http.Client
}

type convertResponse struct {
	Document struct {
		MdContent   string `json:"md_content"`
		HTMLContent string `json:"html_content"`
	} `json:"document"`
}

func NewWithConfig(config ExtractorConfig) (*Extractor, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("extractor base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.Policy.MaxAttempts == 0 {
		config.Policy = retry.DefaultPolicy()
	}

	return &Extractor{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Extract validates the PDF locally, then converts it remotely. Corrupt or
// empty PDFs are permanent failures for the document; service errors retry
// per the policy.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	pages, err := api.PageCountFile(path)
	if err != nil {
		return "", fmt.Errorf("unreadable PDF %s: %w", filepath.Base(path), err)
	}
	if pages == 0 {
		return "", fmt.Errorf("PDF %s has no pages", filepath.Base(path))
	}

	var text string
	err = e.config.Policy.Do(ctx, func() error {
		var convErr error
		text, convErr = e.convert(ctx, path)
		return convErr
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (e *Extractor) convert(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	url := strings.TrimRight(e.config.BaseURL, "/") + "/v1alpha/convert/file"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", retry.Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", retry.Transient(fmt.Errorf("conversion service returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("conversion service rejected %s with status %d", filepath.Base(path), resp.StatusCode)
	}

	var parsed convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("malformed conversion response: %w", err)
	}

	if md := strings.TrimSpace(parsed.Document.MdContent); md != "" {
		return md, nil
	}
	if html := parsed.Document.HTMLContent; html != "" {
		return StripHTML(html)
	}
	return "", fmt.Errorf("conversion produced no text for %s", filepath.Base(path))
}

// StripHTML extracts readable text from an HTML conversion result,
// preferring the main content containers over the full body.
func StripHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style").Remove()

	content := ""
	for _, selector := range []string{"main", "article", ".content", "#content"} {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}

	return strings.TrimSpace(content), nil
}
