package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://app.close.io/api/v1"
	// PageSize is the number of records requested per list page.
	PageSize = 100
	// MinAPIKeyLength is the shortest API key the client accepts.
	MinAPIKeyLength = 6
	// MinRemoteIDLength is the shortest id accepted as an update target.
	MinRemoteIDLength = 5
	// ChangedSinceDateFormat is the date layout of the changed-since query.
	ChangedSinceDateFormat = "2006-01-02"
)

// Resource is a service object type with its own collection endpoint.
type Resource string

const (
	ResourceLead    Resource = "lead"
	ResourceContact Resource = "contact"
)

func (r Resource) collectionPath() string {
	return "/" + string(r) + "/"
}

func (r Resource) itemTemplate() string {
	return "/" + string(r) + "/{id}/"
}

// ListResponse is one page of a list call.
type ListResponse struct {
	HasMore      bool
	TotalResults int
	Data         []Record
}

// LeadStatus is a lead status defined on the service.
type LeadStatus struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// CustomField is a custom lead field defined on the service.
type CustomField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type apiErrorBody struct {
	Error       string            `json:"error"`
	Errors      []string          `json:"errors"`
	FieldErrors map[string]string `json:"field-errors"`
}

func (b apiErrorBody) message() string {
	var parts []string
	if b.Error != "" {
		parts = append(parts, b.Error)
	}
	parts = append(parts, b.Errors...)
	for field, msg := range b.FieldErrors {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

// ServiceClient talks to the service REST API with a single API key.
// It is safe for concurrent use.
type ServiceClient struct {
	apiKey             string
	baseURL            string
	timeout            time.Duration
	exportPollInterval time.Duration
	limiter            *rate.Limiter
	metrics            Metrics
	logger             *slog.Logger
	baseTransport      http.RoundTripper
	transport          http.RoundTripper
}

// ClientOption configures a ServiceClient.
type ClientOption func(*clientOptions)

type clientOptions struct {
	baseURL            string
	timeout            time.Duration
	exportPollInterval time.Duration
	registry           *LimiterRegistry
	metrics            Metrics
	logger             *slog.Logger
	transport          http.RoundTripper
	recordPath         string
}

func WithBaseURL(u string) ClientOption {
	return func(o *clientOptions) { o.baseURL = strings.TrimSuffix(u, "/") }
}

func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithLimiterRegistry shares admission with every other client built from registry.
func WithLimiterRegistry(registry *LimiterRegistry) ClientOption {
	return func(o *clientOptions) { o.registry = registry }
}

func WithMetrics(m Metrics) ClientOption {
	return func(o *clientOptions) { o.metrics = m }
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

func WithHTTPTransport(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.transport = rt }
}

// WithRecording stores every exchange under path, for building test fixtures.
func WithRecording(path string) ClientOption {
	return func(o *clientOptions) { o.recordPath = path }
}

func WithExportPollInterval(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.exportPollInterval = d }
}

// NewServiceClient returns a client bound to apiKey. Without WithLimiterRegistry
// the client gets a private registry using the default throttle.
func NewServiceClient(apiKey string, opts ...ClientOption) *ServiceClient {
	options := clientOptions{
		baseURL:            DefaultBaseURL,
		timeout:            HTTPRequestTimeout,
		exportPollInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.registry == nil {
		options.registry = DefaultLimiterRegistry
	}
	if options.metrics == nil {
		options.metrics = nopMetrics{}
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	base := options.transport
	if base == nil {
		base = http.DefaultTransport
	}
	if options.recordPath != "" {
		base = requests.Record(base, options.recordPath)
	}
	c := &ServiceClient{
		apiKey:             apiKey,
		baseURL:            options.baseURL,
		timeout:            options.timeout,
		exportPollInterval: options.exportPollInterval,
		limiter:            options.registry.Limiter(apiKey),
		metrics:            options.metrics,
		logger:             options.logger,
		baseTransport:      base,
	}
	c.transport = instrumentedTransport{base: base, metrics: c.metrics, logger: c.logger}
	return c
}

// HasValidAPIKey reports whether the key is long enough to be sent.
func (c *ServiceClient) HasValidAPIKey() bool {
	return len(c.apiKey) >= MinAPIKeyLength
}

func (c *ServiceClient) checkAPIKey() error {
	if c.apiKey == "" {
		return &ConfigurationError{Message: "no API key configured"}
	}
	if !c.HasValidAPIKey() {
		return &ConfigurationError{Message: "invalid API key"}
	}
	return nil
}

// ServiceAPIBuilder returns a builder for path with authentication and timeout set.
func (c *ServiceClient) ServiceAPIBuilder(path string) *requests.Builder {
	return requests.
		URL(c.baseURL+path).
		BasicAuth(c.apiKey, "").
		Client(&http.Client{Timeout: c.timeout, Transport: c.transport})
}

// fetch admits the call through the limiter and sends it, normalizing failures into ServiceError.
func (c *ServiceClient) fetch(ctx context.Context, method, template string, b *requests.Builder) error {
	if err := c.checkAPIKey(); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &ServiceError{Method: method, Path: template, Message: err.Error(), Err: err}
	}
	info := &callInfo{template: template}
	var body apiErrorBody
	err := b.
		Method(method).
		ErrorJSON(&body).
		Fetch(context.WithValue(ctx, callInfoKey{}, info))
	if err == nil {
		return nil
	}
	msg := body.message()
	if msg == "" && info.status != 0 {
		msg = http.StatusText(info.status)
	}
	if msg == "" {
		msg = err.Error()
	}
	c.logger.Debug("service api error", "method", method, "url", template, "status", info.status, "error", msg)
	return &ServiceError{StatusCode: info.status, Message: msg, Method: method, Path: template, Err: err}
}

// List returns one page of resource records matching query.
func (c *ServiceClient) List(ctx context.Context, resource Resource, query string, limit, skip int) (ListResponse, error) {
	var raw string
	path := resource.collectionPath()
	b := c.ServiceAPIBuilder(path).
		Param("_limit", strconv.Itoa(limit)).
		Param("_skip", strconv.Itoa(skip)).
		ToString(&raw)
	if query != "" {
		b = b.Param("query", query)
	}
	if err := c.fetch(ctx, http.MethodGet, path, b); err != nil {
		return ListResponse{}, err
	}
	return parseListResponse(raw, http.MethodGet, path)
}

func parseListResponse(raw, method, path string) (ListResponse, error) {
	if !gjson.Valid(raw) {
		return ListResponse{}, &ServiceError{StatusCode: http.StatusOK, Method: method, Path: path, Message: "invalid json response"}
	}
	parsed := gjson.Parse(raw)
	result := ListResponse{
		HasMore:      parsed.Get("has_more").Bool(),
		TotalResults: int(parsed.Get("total_results").Int()),
	}
	parsed.Get("data").ForEach(func(_, value gjson.Result) bool {
		result.Data = append(result.Data, recordFromResult(value))
		return true
	})
	return result, nil
}

// Create creates a new resource record.
func (c *ServiceClient) Create(ctx context.Context, resource Resource, obj *WriteObject) (Record, error) {
	path := resource.collectionPath()
	var raw string
	b := c.ServiceAPIBuilder(path).
		BodyBytes(obj.Body()).
		ContentType("application/json").
		ToString(&raw)
	if err := c.fetch(ctx, http.MethodPost, path, b); err != nil {
		return Record{}, err
	}
	return parseRecord(raw, http.MethodPost, path)
}

// Update replaces the fields present in obj on the record with id.
func (c *ServiceClient) Update(ctx context.Context, resource Resource, id string, obj *WriteObject) (Record, error) {
	template := resource.itemTemplate()
	if err := c.checkAPIKey(); err != nil {
		return Record{}, err
	}
	if len(id) < MinRemoteIDLength {
		return Record{}, &ValidationError{Field: "id", Message: fmt.Sprintf("%q is not a valid %s id", id, resource)}
	}
	var raw string
	b := c.ServiceAPIBuilder(fmt.Sprintf("/%s/%s/", resource, id)).
		BodyBytes(obj.Body()).
		ContentType("application/json").
		ToString(&raw)
	if err := c.fetch(ctx, http.MethodPut, template, b); err != nil {
		return Record{}, err
	}
	return parseRecord(raw, http.MethodPut, template)
}

func parseRecord(raw, method, path string) (Record, error) {
	if !gjson.Valid(raw) {
		return Record{}, &ServiceError{StatusCode: http.StatusOK, Method: method, Path: path, Message: "invalid json response"}
	}
	return NewRecord(raw), nil
}

// LeadStatuses returns every lead status defined on the service.
func (c *ServiceClient) LeadStatuses(ctx context.Context) ([]LeadStatus, error) {
	var response struct {
		Data []LeadStatus `json:"data"`
	}
	path := "/status/lead/"
	if err := c.fetch(ctx, http.MethodGet, path, c.ServiceAPIBuilder(path).ToJSON(&response)); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// LeadCustomFields returns every custom lead field, following pagination.
func (c *ServiceClient) LeadCustomFields(ctx context.Context) ([]CustomField, error) {
	path := "/custom_fields/lead/"
	var result []CustomField
	for skip := 0; ; skip += PageSize {
		var response struct {
			HasMore bool          `json:"has_more"`
			Data    []CustomField `json:"data"`
		}
		b := c.ServiceAPIBuilder(path).
			Param("_limit", strconv.Itoa(PageSize)).
			Param("_skip", strconv.Itoa(skip)).
			ToJSON(&response)
		if err := c.fetch(ctx, http.MethodGet, path, b); err != nil {
			return nil, err
		}
		result = append(result, response.Data...)
		if !response.HasMore || len(response.Data) == 0 {
			return result, nil
		}
	}
}

// IsAuthenticated reports whether the service accepts the API key.
func (c *ServiceClient) IsAuthenticated(ctx context.Context) bool {
	path := "/me/"
	return c.fetch(ctx, http.MethodGet, path, c.ServiceAPIBuilder(path)) == nil
}

// ChangedSinceQuery returns the lead search query for changes after since.
// The date is moved back one day since the query only has day precision.
func ChangedSinceQuery(since time.Time) string {
	return "updated > " + since.UTC().AddDate(0, 0, -1).Format(ChangedSinceDateFormat)
}

// StreamChangedSince pushes every lead changed after since, one page at a time.
// The first page is fetched alone; the rest are fetched concurrently and pushed
// in the order they complete, so page order is not guaranteed. push is never
// called concurrently. Any page failure fails the whole stream.
func (c *ServiceClient) StreamChangedSince(ctx context.Context, since time.Time, push func([]Record) error) error {
	query := ChangedSinceQuery(since)
	first, err := c.List(ctx, ResourceLead, query, PageSize, 0)
	if err != nil {
		return err
	}

	var mu gosync.Mutex
	emit := func(records []Record) error {
		if len(records) == 0 {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		return push(records)
	}

	if err := emit(first.Data); err != nil {
		return err
	}
	if !first.HasMore {
		return nil
	}

	pages := int(math.Ceil(float64(first.TotalResults) / float64(PageSize)))
	g, gctx := errgroup.WithContext(ctx)
	for page := 1; page < pages; page++ {
		skip := page * PageSize
		g.Go(func() error {
			response, err := c.List(gctx, ResourceLead, query, PageSize, skip)
			if err != nil {
				return fmt.Errorf("page at offset %d: %w", skip, err)
			}
			return emit(response.Data)
		})
	}
	return g.Wait()
}

type callInfoKey struct{}

type callInfo struct {
	template string
	status   int
}

// instrumentedTransport reports every exchange to Metrics tagged with the path template.
type instrumentedTransport struct {
	base    http.RoundTripper
	metrics Metrics
	logger  *slog.Logger
}

func (t instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	template := req.URL.Path
	info, _ := req.Context().Value(callInfoKey{}).(*callInfo)
	if info != nil && info.template != "" {
		template = info.template
	}
	start := time.Now()
	res, err := t.base.RoundTrip(req)
	status := 0
	if res != nil {
		status = res.StatusCode
	}
	if info != nil {
		info.status = status
	}
	t.metrics.Increment(MetricServiceAPICall, 1,
		"method:"+req.Method,
		"url:"+template,
		"status:"+strconv.Itoa(status),
		"statusGroup:"+StatusGroup(status),
		"endpoint:"+req.Method+" "+template,
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		t.logger.Debug("service api transport error", "method", req.Method, "url", template, "error", err)
	} else {
		t.logger.Debug("service api call", "method", req.Method, "url", template, "status", status, "elapsed", time.Since(start))
	}
	return res, err
}

// StatusGroup returns the status class, e.g. "2xx", or "none" without a response.
func StatusGroup(status int) string {
	if status < 100 || status > 599 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}
