package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/marketlake/internal/domain/catalog"
	"github.com/yungbote/marketlake/internal/platform/ctxutil"
	"github.com/yungbote/marketlake/internal/platform/envutil"
	"github.com/yungbote/marketlake/internal/platform/httpx"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// PageSize is the most search objects the API returns per request.
const PageSize = 40

type Client interface {
	Categories(ctx context.Context) ([]catalog.CategoryNode, error)
	// SearchPage returns the raw search objects starting at offset start.
	SearchPage(ctx context.Context, pathRoot, searchPath string, start int) ([]json.RawMessage, error)
}

type Config struct {
	BaseURL    string
	Origin     string
	UserAgent  string
	Language   string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:    envutil.String("MARKETPLACE_BASE_URL", "https://api.wallapop.com"),
		Origin:     envutil.String("MARKETPLACE_ORIGIN", "https://es.wallapop.com"),
		UserAgent:  envutil.String("MARKETPLACE_USER_AGENT", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"),
		Language:   envutil.String("MARKETPLACE_LANGUAGE", "es-ES,es;q=0.9"),
		Timeout:    envutil.Duration("MARKETPLACE_TIMEOUT", 30*time.Second),
		MaxRetries: envutil.Int("MARKETPLACE_MAX_RETRIES", 2),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing MARKETPLACE_BASE_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &client{
		log:        log.With("client", "MarketplaceClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func (c *client) Categories(ctx context.Context) ([]catalog.CategoryNode, error) {
	var out struct {
		Categories []catalog.CategoryNode `json:"categories"`
	}
	if err := c.getJSON(ctx, c.cfg.BaseURL+"/api/v3/categories", &out); err != nil {
		return nil, httpx.Classify("marketplace categories", err)
	}
	return out.Categories, nil
}

func (c *client) SearchPage(ctx context.Context, pathRoot, searchPath string, start int) ([]json.RawMessage, error) {
	pathRoot = strings.Trim(strings.TrimSpace(pathRoot), "/")
	if pathRoot == "" {
		return nil, fmt.Errorf("marketplace search: empty path root")
	}
	endpoint := fmt.Sprintf("%s/api/v3/%s/search?%s&start=%s", c.cfg.BaseURL, pathRoot, strings.TrimSpace(searchPath), strconv.Itoa(start))
	var out struct {
		SearchObjects []json.RawMessage `json:"search_objects"`
	}
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, httpx.Classify("marketplace search", err)
	}
	return out.SearchObjects, nil
}

func (c *client) getJSON(ctx context.Context, urlStr string, out any) error {
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		if err := ctxutil.Default(ctx).Err(); err != nil {
			return err
		}
		resp, err := c.getOnce(ctx, urlStr, out)
		if err == nil {
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt >= c.cfg.MaxRetries {
			return err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("Marketplace request retrying",
			"url", urlStr,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-ctxutil.Default(ctx).Done():
			return ctxutil.Default(ctx).Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}
}

func (c *client) getOnce(ctx context.Context, urlStr string, out any) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", c.cfg.Language)
	if c.cfg.Origin != "" {
		req.Header.Set("Origin", c.cfg.Origin)
		req.Header.Set("Referer", c.cfg.Origin+"/")
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	// A fresh device id per request.
	req.Header.Set("X-DeviceID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return resp, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &httpx.StatusError{Service: "marketplace", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp, fmt.Errorf("marketplace decode error: %w", err)
	}
	return resp, nil
}
