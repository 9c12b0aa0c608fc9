package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

const (
	fetchTimeout     = 15 * time.Second
	preflightTimeout = 3 * time.Second
	preflightSample  = 5000
	textMirrorBase   = "https://r.jina.ai/"
)

// FetchError classifies a document fetch failure so the job layer can
// decide retry-vs-terminal without inspecting transport details.
type FetchError struct {
	Code             string
	Message          string
	StatusCode       int
	Warning          string
	NextAction       string
	NextActionReason string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Fetcher retrieves remote documents with browser-like headers and an
// automatic public text-mirror fallback on block or network failure.
type Fetcher struct {
	client    *resty.Client
	userAgent string
	cookies   string
	logger    *zap.Logger
}

func NewFetcher(userAgent, cookies string, logger *zap.Logger) *Fetcher {
	client := resty.New().
		SetTimeout(fetchTimeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	return &Fetcher{client: client, userAgent: userAgent, cookies: cookies, logger: logger}
}

// isPrivateHost blocks loopback, private-range and localhost targets.
func isPrivateHost(host string) bool {
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	if ip := net.ParseIP(hostname); ip != nil {
		return ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified()
	}
	return strings.EqualFold(hostname, "localhost")
}

func validateTarget(rawURL string) (*url.URL, *FetchError) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, &FetchError{Code: model.ErrCodeInvalidURL, Message: "URL must start with http or https"}
	}
	if parsed.Host == "" || isPrivateHost(parsed.Host) {
		return nil, &FetchError{Code: model.ErrCodeInvalidURL, Message: "host is blocked (localhost/private)"}
	}
	return parsed, nil
}

func (f *Fetcher) browserHeaders() map[string]string {
	headers := map[string]string{
		"User-Agent":      f.userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Referer":         "https://www.google.com/",
		"Connection":      "keep-alive",
	}
	if f.cookies != "" {
		headers["Cookie"] = f.cookies
	}
	return headers
}

func (f *Fetcher) get(ctx context.Context, target string, extra map[string]string) (*resty.Response, error) {
	req := f.client.R().SetContext(ctx).SetHeaders(f.browserHeaders())
	if extra != nil {
		req.SetHeaders(extra)
	}
	return req.Get(target)
}

// Fetch retrieves HTML from a URL with encoding handling and fallbacks.
// 401/403 first retries with a permissive Accept header, then falls back
// to the public text mirror; network errors go straight to the mirror.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, *FetchError) {
	if _, ferr := validateTarget(rawURL); ferr != nil {
		return "", ferr
	}

	resp, err := f.get(ctx, rawURL, nil)
	switch {
	case err != nil:
		f.logger.Warn("fetch network error, trying text mirror", zap.String("url", rawURL), zap.Error(err))
		resp, err = f.get(ctx, textMirrorBase+rawURL, map[string]string{"Accept": "text/plain"})
		if err != nil {
			code := model.ErrCodeFetchFailed
			if isTimeoutErr(err) {
				code = model.ErrCodeFetchTimeout
			}
			return "", &FetchError{Code: code, Message: err.Error(), Warning: model.WarningFetchHTTPErr}
		}
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		blocked := resp.StatusCode()
		resp, err = f.get(ctx, rawURL, map[string]string{"Accept": "*/*"})
		if err != nil || resp.StatusCode() >= 400 {
			resp, err = f.get(ctx, textMirrorBase+rawURL, map[string]string{"Accept": "text/plain"})
			if err != nil || resp.StatusCode() >= 400 {
				return "", &FetchError{
					Code:             model.ErrCodeFetchFailed,
					Message:          fmt.Sprintf("site returned status %d", blocked),
					StatusCode:       blocked,
					Warning:          model.WarningBlockedBySite,
					NextAction:       model.NextActionWebviewExtract,
					NextActionReason: model.WarningBlockedBySite,
				}
			}
		}
	case resp.StatusCode() >= 400:
		return "", &FetchError{
			Code:       model.ErrCodeFetchFailed,
			Message:    fmt.Sprintf("site returned status %d", resp.StatusCode()),
			StatusCode: resp.StatusCode(),
			Warning:    model.WarningFetchHTTPErr,
		}
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") &&
		!strings.Contains(contentType, "application/xhtml") {
		return "", &FetchError{
			Code:    model.ErrCodeUnsupportedContentType,
			Message: fmt.Sprintf("unsupported content type: %s", contentType),
		}
	}

	text, decodeErr := decodeBody(resp.Body(), contentType)
	if decodeErr != nil {
		return "", &FetchError{
			Code:             model.ErrCodeEncodingError,
			Message:          "unable to decode HTML content with detected encoding",
			Warning:          model.WarningEncodingError,
			NextAction:       model.NextActionWebviewExtract,
			NextActionReason: model.WarningEncodingError,
		}
	}

	if len(text) > 100 && !validHTMLSample(text) && !strings.Contains(contentType, "text/plain") {
		stats := sampleStats(text)
		f.logger.Warn("fetched HTML failed validation",
			zap.String("url", rawURL),
			zap.Bool("has_tags", stats.HasHTMLTags),
			zap.Float64("printable_ratio", stats.PrintableRatio),
			zap.Float64("control_ratio", stats.ControlRatio))
		return "", &FetchError{
			Code:             model.ErrCodeEncodingError,
			Message:          "HTML content appears corrupted or has encoding issues",
			Warning:          model.WarningEncodingError,
			NextAction:       model.NextActionWebviewExtract,
			NextActionReason: model.WarningEncodingError,
		}
	}

	return text, nil
}

// decodeBody converts response bytes to UTF-8 using the content-type
// charset and in-document meta hints.
func decodeBody(body []byte, contentType string) (string, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// Preflight is the cheap pre-enqueue gate: HEAD first (GET on 405), a
// content-type check, and a bounded content sample screened for encoding
// corruption. It exists to avoid queuing work doomed to fail.
func (f *Fetcher) Preflight(ctx context.Context, rawURL string) model.PreflightResult {
	if _, ferr := validateTarget(rawURL); ferr != nil {
		return model.PreflightResult{OK: false, ErrorCode: ferr.Code, ErrorMessage: ferr.Message}
	}

	client := resty.New().
		SetTimeout(preflightTimeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	req := client.R().SetContext(ctx).SetHeaders(f.browserHeaders())
	resp, err := req.Head(rawURL)
	if err == nil && resp.StatusCode() == 405 {
		resp, err = client.R().SetContext(ctx).SetHeaders(f.browserHeaders()).Get(rawURL)
	}
	if err != nil {
		if isTimeoutErr(err) {
			return model.PreflightResult{OK: false, ErrorCode: model.ErrCodeFetchTimeout, ErrorMessage: "timed out reaching the site"}
		}
		return model.PreflightResult{OK: false, ErrorCode: model.ErrCodeFetchFailed, ErrorMessage: fmt.Sprintf("network error: %v", err)}
	}

	ctype := resp.Header().Get("Content-Type")
	if resp.StatusCode() >= 400 {
		result := model.PreflightResult{
			OK:           false,
			StatusCode:   resp.StatusCode(),
			ContentType:  ctype,
			ErrorCode:    model.ErrCodeFetchFailed,
			ErrorMessage: fmt.Sprintf("site returned status %d", resp.StatusCode()),
		}
		if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
			result.NextAction = model.NextActionWebviewExtract
			result.NextActionReason = model.WarningBlockedBySite
		}
		return result
	}
	if ctype != "" && !strings.Contains(ctype, "text/html") && !strings.Contains(ctype, "application/xhtml") {
		return model.PreflightResult{
			OK:           false,
			StatusCode:   resp.StatusCode(),
			ContentType:  ctype,
			ErrorCode:    model.ErrCodeUnsupportedContentType,
			ErrorMessage: fmt.Sprintf("unsupported content type: %s", ctype),
		}
	}

	// Bounded sample screen for encoding corruption.
	if resp.StatusCode() == 200 {
		sampleResp, sampleErr := client.R().SetContext(ctx).SetHeaders(f.browserHeaders()).Get(rawURL)
		if sampleErr == nil {
			body := sampleResp.Body()
			if len(body) > preflightSample {
				body = body[:preflightSample]
			}
			text, decodeErr := decodeBody(body, ctype)
			if decodeErr != nil || (len(text) > 100 && !validHTMLSample(text)) {
				return model.PreflightResult{
					OK:               false,
					StatusCode:       resp.StatusCode(),
					ContentType:      ctype,
					ErrorCode:        model.ErrCodeEncodingError,
					ErrorMessage:     "HTML content appears corrupted or has encoding issues",
					NextAction:       model.NextActionWebviewExtract,
					NextActionReason: model.WarningEncodingError,
				}
			}
		}
	}

	return model.PreflightResult{OK: true, StatusCode: resp.StatusCode(), ContentType: ctype}
}
