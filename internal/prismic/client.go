package prismic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	appLog "whatsnext/internal/log"
	"whatsnext/internal/metrics"
)

const (
	defaultPageSize = 100
	defaultTimeout  = 15 * time.Second

	// maxPages guards against an upstream that keeps reporting more pages.
	maxPages = 500
)

var (
	// ErrMissingRepository is returned by New when no repository is configured.
	ErrMissingRepository = errors.New("prismic: repository name is required")
	// ErrNotFound is returned by GetByUID when no document matches.
	ErrNotFound = errors.New("prismic: document not found")
)

// APIError is a non-2xx response from the content API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("prismic: unexpected status %d: %s", e.Status, strings.TrimSpace(body))
}

// Options configures a Client.
type Options struct {
	// Repository is the repository name, e.g. "lancaster".
	Repository string
	// AccessToken is optional.
	AccessToken string
	// Endpoint overrides https://{Repository}.cdn.prismic.io/api/v2.
	Endpoint string
	// PageSize is the search page size (1..100).
	PageSize int
	// Timeout bounds each HTTP request; ignored when HTTPClient is set.
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Ordering sorts search results by a document path.
type Ordering struct {
	Field string
	Desc  bool
}

// QueryOptions mirrors the query knobs of the official SDKs.
type QueryOptions struct {
	Orderings []Ordering
	// FetchLinks lists "type.field" paths to expand on linked documents.
	FetchLinks []string
	// Filters are predicates built with At.
	Filters []string
}

// Client is a read-only client for the Prismic REST API v2.
type Client struct {
	client      *http.Client
	endpoint    string
	accessToken string
	pageSize    int
	metrics     *metrics.Metrics
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	repo := strings.TrimSpace(opts.Repository)
	if repo == "" && opts.Endpoint == "" {
		return nil, ErrMissingRepository
	}

	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://" + repo + ".cdn.prismic.io/api/v2"
	}

	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = defaultPageSize
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = newHTTPClient(timeout)
	}

	return &Client{
		client:      hc,
		endpoint:    endpoint,
		accessToken: opts.AccessToken,
		pageSize:    pageSize,
		metrics:     opts.Metrics,
	}, nil
}

// At builds an `at` predicate: at(path, "value").
func At(path, value string) string {
	return "[at(" + path + ", " + strconv.Quote(value) + ")]"
}

type apiRoot struct {
	Refs []struct {
		ID          string `json:"id"`
		Ref         string `json:"ref"`
		IsMasterRef bool   `json:"isMasterRef"`
	} `json:"refs"`
}

type searchResponse struct {
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	Results    []Document `json:"results"`
}

// Ref returns the master ref, which every search must be pinned to.
func (c *Client) Ref(ctx context.Context) (string, error) {
	var root apiRoot
	if err := c.getJSON(ctx, c.endpoint, c.withToken(url.Values{}), &root); err != nil {
		return "", fmt.Errorf("read api root: %w", err)
	}
	for _, r := range root.Refs {
		if r.IsMasterRef && r.Ref != "" {
			return r.Ref, nil
		}
	}
	return "", errors.New("prismic: api root has no master ref")
}

// GetAllByType returns every document of docType, following pagination.
// Upstream ordering is requested but callers should treat it as a hint.
func (c *Client) GetAllByType(ctx context.Context, docType string, opts QueryOptions) ([]Document, error) {
	started := time.Now()
	docs, err := c.getAllByType(ctx, docType, opts)
	c.observe(docType, err, started)
	if err != nil {
		return nil, fmt.Errorf("query %s documents: %w", docType, err)
	}
	appLog.Debug("prismic query completed", "doc_type", docType, "count", len(docs), "took", time.Since(started))
	return docs, nil
}

func (c *Client) getAllByType(ctx context.Context, docType string, opts QueryOptions) ([]Document, error) {
	ref, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}

	filters := append([]string{At("document.type", docType)}, opts.Filters...)
	params := c.searchParams(ref, filters, opts)

	out := make([]Document, 0)
	for page := 1; page <= maxPages; page++ {
		params.Set("page", strconv.Itoa(page))

		var resp searchResponse
		if err := c.getJSON(ctx, c.endpoint+"/documents/search", params, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Results...)

		if len(resp.Results) == 0 || page >= resp.TotalPages {
			break
		}
	}
	return out, nil
}

// GetByUID returns the document of docType whose uid matches.
func (c *Client) GetByUID(ctx context.Context, docType, uid string, opts QueryOptions) (Document, error) {
	started := time.Now()
	doc, err := c.getByUID(ctx, docType, uid, opts)
	c.observe(docType, err, started)
	if err != nil {
		return Document{}, fmt.Errorf("get %s %q: %w", docType, uid, err)
	}
	return doc, nil
}

func (c *Client) getByUID(ctx context.Context, docType, uid string, opts QueryOptions) (Document, error) {
	if strings.TrimSpace(uid) == "" {
		return Document{}, ErrNotFound
	}
	ref, err := c.Ref(ctx)
	if err != nil {
		return Document{}, err
	}

	filters := []string{At("my."+docType+".uid", uid)}
	params := c.searchParams(ref, filters, opts)
	params.Set("pageSize", "1")

	var resp searchResponse
	if err := c.getJSON(ctx, c.endpoint+"/documents/search", params, &resp); err != nil {
		return Document{}, err
	}
	if len(resp.Results) == 0 {
		return Document{}, ErrNotFound
	}
	return resp.Results[0], nil
}

func (c *Client) searchParams(ref string, filters []string, opts QueryOptions) url.Values {
	params := url.Values{}
	params.Set("ref", ref)
	params.Set("q", "["+strings.Join(filters, "")+"]")
	params.Set("pageSize", strconv.Itoa(c.pageSize))

	if len(opts.Orderings) > 0 {
		parts := make([]string, 0, len(opts.Orderings))
		for _, o := range opts.Orderings {
			if o.Desc {
				parts = append(parts, o.Field+" desc")
			} else {
				parts = append(parts, o.Field)
			}
		}
		params.Set("orderings", "["+strings.Join(parts, ",")+"]")
	}
	if len(opts.FetchLinks) > 0 {
		params.Set("fetchLinks", strings.Join(opts.FetchLinks, ","))
	}
	return c.withToken(params)
}

func (c *Client) withToken(params url.Values) url.Values {
	if c.accessToken != "" {
		params.Set("access_token", c.accessToken)
	}
	return params
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, dst any) error {
	u := endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// *url.Error embeds the full URL, token included.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redactURL(ue.URL)
		}
		appLog.Error("prismic request failed", err, "url", redactURL(u))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) observe(docType string, err error, started time.Time) {
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = metrics.OutcomeNotFound
	case err != nil:
		outcome = metrics.OutcomeError
	}
	c.metrics.ObserveCMS(docType, outcome, time.Since(started))
}

// redactURL drops the query string, which may carry the access token.
func redactURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?...(redacted)"
	}
	return u
}
