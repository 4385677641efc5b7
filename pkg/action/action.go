package action

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/xjectro/actionkit/internal/constants"
	actionhttp "github.com/xjectro/actionkit/internal/http"
	"github.com/xjectro/actionkit/internal/observe"
	"github.com/xjectro/actionkit/pkg/tagcache"
)

// Func is the callable form of an action.
type Func[In, Out any] func(ctx context.Context, data In) (Out, error)

// Action is a built descriptor bound to a factory. It holds no mutable state
// and is safe for concurrent use.
type Action[In, Out any] struct {
	factory           *Factory
	name              string
	endpoint          string
	method            Method
	headers           http.Header
	tags              []string
	requestTransform  RequestTransform[In]
	responseTransform ResponseTransform[Out]
}

// Build validates d and binds it to f. Descriptor problems are reported as
// KindConfiguration errors. The descriptor is copied; later changes to d or
// its header map do not affect the action.
func Build[In, Out any](f *Factory, d Descriptor[In, Out]) (*Action[In, Out], error) {
	method, err := ParseMethod(string(d.Method))

	meta := callMeta{name: d.Name, method: method}
	if meta.name == "" {
		meta.name = fmt.Sprintf("%s %s", method, d.Endpoint)
	}

	if err != nil {
		return nil, newError(KindConfiguration, meta, "invalid descriptor", err)
	}

	if f == nil {
		return nil, newError(KindConfiguration, meta, "invalid descriptor", ErrFactoryRequired)
	}

	err = validateEndpoint(d.Endpoint)
	if err != nil {
		return nil, newError(KindConfiguration, meta, "invalid descriptor", err)
	}

	tags, err := normalizeTags(d.Tags)
	if err != nil {
		return nil, newError(KindConfiguration, meta, "invalid descriptor", err)
	}

	source := d.Headers
	if source == nil {
		source = DefaultHeaders()
	}

	headers := make(http.Header, len(source))
	for key, value := range source {
		headers.Set(key, value)
	}

	if len(tags) > 0 && f.invalidator == nil {
		f.logger.Warn("Action declares tags but no invalidator is configured", map[string]interface{}{
			"action": meta.name,
			"tags":   tags,
		})
	}

	return &Action[In, Out]{
		factory:           f,
		name:              meta.name,
		endpoint:          d.Endpoint,
		method:            method,
		headers:           headers,
		tags:              tags,
		requestTransform:  d.RequestTransform,
		responseTransform: d.ResponseTransform,
	}, nil
}

// MustBuild is like Build but panics on error. Intended for package-level
// action definitions.
func MustBuild[In, Out any](f *Factory, d Descriptor[In, Out]) *Action[In, Out] {
	a, err := Build(f, d)
	if err != nil {
		panic(err)
	}

	return a
}

func validateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return constants.ErrEndpointRequired
	}

	if strings.Contains(endpoint, "://") {
		return fmt.Errorf("%w: %q", ErrEndpointNotPath, endpoint)
	}

	return nil
}

// normalizeTags validates tags and drops duplicates, keeping the first
// occurrence.
func normalizeTags(tags Tags) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	normalized := make([]string, 0, len(tags))

	for _, tag := range tags {
		err := tagcache.ValidateTag(tag)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", tag, err)
		}

		if !slices.Contains(normalized, tag) {
			normalized = append(normalized, tag)
		}
	}

	return normalized, nil
}

// Name returns the action name.
func (a *Action[In, Out]) Name() string {
	return a.name
}

// Endpoint returns the descriptor endpoint.
func (a *Action[In, Out]) Endpoint() string {
	return a.endpoint
}

// Method returns the HTTP method.
func (a *Action[In, Out]) Method() Method {
	return a.method
}

// Tags returns a copy of the tags invalidated after a successful call.
func (a *Action[In, Out]) Tags() []string {
	return slices.Clone(a.tags)
}

// Headers returns a copy of the descriptor headers.
func (a *Action[In, Out]) Headers() http.Header {
	return a.headers.Clone()
}

// Func returns the action as a plain function.
func (a *Action[In, Out]) Func() Func[In, Out] {
	return a.Call
}

// Call executes the action with data. A nil pointer, map, slice or interface
// counts as no data.
func (a *Action[In, Out]) Call(ctx context.Context, data In) (Out, error) {
	return a.call(ctx, data, true)
}

// Invoke executes the action without data.
func (a *Action[In, Out]) Invoke(ctx context.Context) (Out, error) {
	var data In

	return a.call(ctx, data, false)
}

func (a *Action[In, Out]) call(ctx context.Context, data In, hasData bool) (Out, error) {
	f := a.factory

	if f.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	ctx, obs := f.inst.Start(ctx, observe.Meta{Name: a.name, Method: string(a.method), Endpoint: a.endpoint})

	out, actionErr := a.execute(ctx, obs, data, hasData)
	if actionErr != nil {
		obs.End(ctx, string(actionErr.Kind), actionErr)

		f.logger.Debug("Action failed", map[string]interface{}{
			"action": a.name,
			"kind":   string(actionErr.Kind),
			"error":  actionErr.Message,
		})

		var zero Out

		return zero, actionErr
	}

	a.invalidate(ctx, obs)
	obs.End(ctx, "", nil)

	return out, nil
}

//nolint:funlen // the pipeline reads top to bottom
func (a *Action[In, Out]) execute(ctx context.Context, obs *observe.Call, data In, hasData bool) (Out, *Error) {
	var zero Out

	f := a.factory
	meta := callMeta{name: a.name, method: a.method}

	var payload any

	if hasData && isDefined(data) {
		payload = data

		if a.requestTransform != nil {
			transformed, err := safeRequestTransform(a.requestTransform, data)
			if err != nil {
				return zero, newError(KindTransform, meta, "request transform failed", err)
			}

			payload = transformed
		}
	}

	target, err := resolveURL(f.baseURL, a.endpoint)
	if err != nil {
		return zero, newError(KindConfiguration, meta, "cannot build request URL", err)
	}

	meta.url = target

	encoded, err := encodeRequest(a.method, target, a.headers, payload)
	if err != nil {
		return zero, newError(KindTransform, meta, "cannot encode request", err)
	}

	meta.url = encoded.url

	req := &Request{
		Action:   a.name,
		Method:   a.method,
		URL:      encoded.url,
		Headers:  encoded.headers,
		Body:     encoded.body,
		Metadata: make(map[string]interface{}),
	}

	err = f.chain.ExecuteRequestInterceptors(ctx, req)
	if err != nil {
		return zero, newError(KindTransform, meta, "cannot prepare request", err)
	}

	meta.url = req.URL

	raw, err := f.transport.Do(ctx, &actionhttp.Request{
		Method:      string(req.Method),
		URL:         req.URL,
		Headers:     req.Headers,
		Body:        req.Body,
		ContentType: encoded.contentType,
	})
	if err != nil {
		return zero, newError(KindNetwork, meta, "request failed", err)
	}

	obs.SetStatus(raw.StatusCode)

	resp := NewResponse(raw.StatusCode, raw.Headers, raw.Body)

	err = f.chain.ExecuteResponseInterceptors(ctx, req, resp)
	if err != nil {
		return zero, newError(KindTransform, meta, "cannot process response", err)
	}

	if !resp.OK() {
		return zero, newError(KindHTTP, meta, "request rejected", &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			Body:       resp.Body(),
		})
	}

	if a.responseTransform != nil {
		out, err := safeResponseTransform(ctx, a.responseTransform, resp)
		if err != nil {
			return zero, newError(KindTransform, meta, "response transform failed", err)
		}

		return out, nil
	}

	out, err := decodeResponse[Out](resp)
	if err != nil {
		return zero, newError(KindParse, meta, "cannot parse response", err)
	}

	return out, nil
}

// invalidate signals every tag in order. Failures are logged and reported to
// OnInvalidationError; they never fail the call.
func (a *Action[In, Out]) invalidate(ctx context.Context, obs *observe.Call) {
	f := a.factory
	if len(a.tags) == 0 || f.invalidator == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)

	var errs []error

	for _, tag := range a.tags {
		err := f.invalidator.Invalidate(ctx, tag)
		obs.RecordInvalidation(ctx, tag, err)

		if err != nil {
			f.logger.Warn("Cache invalidation failed", map[string]interface{}{
				"action": a.name,
				"tag":    tag,
				"error":  err.Error(),
			})

			errs = append(errs, fmt.Errorf("tag %q: %w", tag, err))
		}
	}

	if len(errs) > 0 && f.onInvalidationError != nil {
		f.onInvalidationError(ctx, a.name, errors.Join(errs...))
	}
}

func safeRequestTransform[In any](transform RequestTransform[In], data In) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTransformPanic, r)
		}
	}()

	return transform(data)
}

func safeResponseTransform[Out any](ctx context.Context, transform ResponseTransform[Out], resp *Response) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTransformPanic, r)
		}
	}()

	return transform(ctx, resp)
}
