package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultUserAgent = "etl-notifier/1"

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// hook POSTs JSON bodies to one webhook URL. Failed posts are not retried; the next
// cycle is the retry.
type hook struct {
	url       string
	userAgent string
	client    *http.Client
	logger    *zap.Logger
}

func newHook(logger *zap.Logger, url, userAgent string, timeout time.Duration) hook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return hook{
		url:       url,
		userAgent: userAgent,
		client:    newHTTPClient(timeout),
		logger:    logger.Named("notify"),
	}
}

func (h hook) postJSON(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", h.userAgent)

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		// *url.Error repeats the full URL, signature included
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("post %s: %w", RedactURL(h.url), err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	h.logger.Debug("webhook delivered",
		zap.String("url", RedactURL(h.url)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
