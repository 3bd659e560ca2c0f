package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"fbicheck/internal/config"
	"fbicheck/internal/logging"
	"fbicheck/internal/services"
)

// Options configures the Elasticsearch client.
type Options struct {
	Addresses  []string
	Username   string
	Password   string
	APIKey     string
	FilesIndex string
	DirsIndex  string
	Scroll     time.Duration
	PageSize   int
	Timeout    time.Duration
}

// OptionsFromConfig maps the [index] section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Addresses:  append([]string(nil), cfg.Index.Addresses...),
		Username:   cfg.Index.Username,
		Password:   cfg.Index.Password,
		APIKey:     cfg.Index.APIKey,
		FilesIndex: cfg.Index.FilesIndex,
		DirsIndex:  cfg.Index.DirsIndex,
		Scroll:     cfg.IndexScroll(),
		PageSize:   cfg.Index.PageSize,
		Timeout:    cfg.IndexTimeout(),
	}
}

// Client queries the files and directories indices through the scroll API.
type Client struct {
	es     *elasticsearch.Client
	opts   Options
	logger *slog.Logger
}

// New builds a client. No request is made until the first query.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Scroll <= 0 {
		opts.Scroll = time.Minute
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 1000
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: opts.Addresses,
		Username:  opts.Username,
		Password:  opts.Password,
		APIKey:    opts.APIKey,
		// Retries on 502/503/504 are handled by the transport.
		MaxRetries: 3,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "index", "client", "", err)
	}
	return &Client{es: es, opts: opts, logger: logging.NewComponentLogger(logger, "index")}, nil
}

type fileSource struct {
	Info struct {
		Directory string `json:"directory"`
		Name      string `json:"name"`
	} `json:"info"`
}

type dirSource struct {
	Path string `json:"path"`
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Files implements Querier with a term query on info.directory.
func (c *Client) Files(ctx context.Context, dir string) ([]Record, error) {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"info.directory": dir},
		},
		"_source": []string{"info.directory", "info.name"},
	}
	var records []Record
	err := c.scan(ctx, c.opts.FilesIndex, query, func(raw json.RawMessage) error {
		var src fileSource
		if err := json.Unmarshal(raw, &src); err != nil {
			return err
		}
		records = append(records, Record{Path: path.Join(src.Info.Directory, src.Info.Name), Kind: KindFile})
		return nil
	})
	return records, err
}

// Dirs implements Querier with a prefix query on path.keyword bounded to
// depth-1..depth.
func (c *Client) Dirs(ctx context.Context, dir string) ([]Record, error) {
	depth := Depth(dir)
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"prefix": map[string]any{"path.keyword": dir}},
				},
				"filter": map[string]any{
					"range": map[string]any{
						"depth": map[string]any{"gte": depth - 1, "lte": depth},
					},
				},
			},
		},
		"_source": []string{"path"},
	}
	var records []Record
	err := c.scan(ctx, c.opts.DirsIndex, query, func(raw json.RawMessage) error {
		var src dirSource
		if err := json.Unmarshal(raw, &src); err != nil {
			return err
		}
		records = append(records, Record{Path: src.Path, Kind: KindDirectory})
		return nil
	})
	return records, err
}

func (c *Client) scan(ctx context.Context, index string, query map[string]any, visit func(json.RawMessage) error) error {
	body, err := json.Marshal(query)
	if err != nil {
		return services.Wrap(services.ErrIndexUnavailable, "index", "encode query", index, err)
	}

	page, err := c.fetch(ctx, func(reqCtx context.Context) (*esapi.Response, error) {
		return c.es.Search(
			c.es.Search.WithContext(reqCtx),
			c.es.Search.WithIndex(index),
			c.es.Search.WithBody(bytes.NewReader(body)),
			c.es.Search.WithScroll(c.opts.Scroll),
			c.es.Search.WithSize(c.opts.PageSize),
		)
	})
	if err != nil {
		return services.Wrap(services.ErrIndexUnavailable, "index", "search", index, err)
	}

	scrollID := page.ScrollID
	defer func() { c.clearScroll(scrollID) }()

	pages := 1
	for len(page.Hits.Hits) > 0 {
		for _, hit := range page.Hits.Hits {
			if err := visit(hit.Source); err != nil {
				return services.Wrap(services.ErrIndexUnavailable, "index", "decode hit", index, err)
			}
		}
		if scrollID == "" {
			break
		}

		page, err = c.fetch(ctx, func(reqCtx context.Context) (*esapi.Response, error) {
			return c.es.Scroll(
				c.es.Scroll.WithContext(reqCtx),
				c.es.Scroll.WithScrollID(scrollID),
				c.es.Scroll.WithScroll(c.opts.Scroll),
			)
		})
		if err != nil {
			return services.Wrap(services.ErrIndexUnavailable, "index", "scroll", index, err)
		}
		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
		pages++
	}
	c.logger.Debug("index scan complete",
		logging.String("index", index),
		logging.Int("pages", pages),
	)
	return nil
}

// fetch runs one request under the per-request timeout and decodes the page
// before the timeout context is released.
func (c *Client) fetch(ctx context.Context, do func(context.Context) (*esapi.Response, error)) (searchResponse, error) {
	var (
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if c.opts.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	res, err := do(reqCtx)
	return decodePage(res, err)
}

func (c *Client) clearScroll(scrollID string) {
	if scrollID == "" {
		return
	}
	body, err := json.Marshal(map[string][]string{"scroll_id": {scrollID}})
	if err != nil {
		return
	}
	res, err := c.es.ClearScroll(c.es.ClearScroll.WithBody(bytes.NewReader(body)))
	if err != nil {
		c.logger.Debug("clear scroll failed", logging.Error(err))
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		logging.WarnWithContext(c.logger, "clear scroll rejected", "index_clear_scroll_failed",
			logging.Int("status", res.StatusCode),
			logging.String("response", strings.TrimSpace(string(msg))),
			logging.String(logging.FieldImpact, "the scroll context is held until it expires"),
		)
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
}

func decodePage(res *esapi.Response, err error) (searchResponse, error) {
	var page searchResponse
	if err != nil {
		return page, err
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return page, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return page, fmt.Errorf("decode response: %w", err)
	}
	return page, nil
}
