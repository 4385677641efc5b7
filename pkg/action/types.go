package action

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xjectro/actionkit/internal/constants"
)

// Method is an HTTP method accepted by a descriptor.
type Method string

// Supported methods.
const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
	MethodPatch  Method = http.MethodPatch
)

// DefaultMethod is used when a descriptor leaves Method empty.
const DefaultMethod = MethodPost

// ParseMethod parses a case-insensitive method name. An empty string yields
// DefaultMethod.
func ParseMethod(s string) (Method, error) {
	method := Method(strings.ToUpper(strings.TrimSpace(s)))
	if method == "" {
		return DefaultMethod, nil
	}

	switch method {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch:
		return method, nil
	default:
		return "", fmt.Errorf("%w: %q", constants.ErrUnsupportedMethod, s)
	}
}

// Tags is an ordered list of cache tags. In JSON and YAML it may be written
// as a single string or a list.
type Tags []string

// Tag returns a one-element tag list.
func Tag(tag string) Tags {
	return Tags{tag}
}

// UnmarshalJSON accepts a string or an array of strings.
func (t *Tags) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = Tags{single}

		return nil
	}

	var list []string

	err := json.Unmarshal(data, &list)
	if err != nil {
		return fmt.Errorf("tags must be a string or a list of strings: %w", err)
	}

	*t = list

	return nil
}

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (t *Tags) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = Tags{node.Value}

		return nil
	case yaml.SequenceNode:
		var list []string

		err := node.Decode(&list)
		if err != nil {
			return fmt.Errorf("tags must be a list of strings: %w", err)
		}

		*t = list

		return nil
	default:
		return fmt.Errorf("tags must be a string or a list of strings (line %d)", node.Line)
	}
}

// RequestTransform maps the caller's input to the request payload.
type RequestTransform[In any] func(data In) (any, error)

// ResponseTransform maps a successful raw response to the action's output.
type ResponseTransform[Out any] func(ctx context.Context, resp *Response) (Out, error)

// Descriptor is the static definition of one action.
type Descriptor[In, Out any] struct {
	// Name identifies the action in logs, metrics and errors. Defaults to
	// "<METHOD> <Endpoint>".
	Name string

	// Endpoint is the path appended to the factory's base URL. Required.
	Endpoint string

	// Method defaults to POST.
	Method Method

	// Headers default to {"Content-Type": "application/json"} when nil.
	Headers map[string]string

	// Tags are invalidated after every successful call.
	Tags Tags

	// RequestTransform, when set, converts defined input before encoding.
	RequestTransform RequestTransform[In]

	// ResponseTransform, when set, replaces the default JSON/text decoding.
	ResponseTransform ResponseTransform[Out]
}

// DefaultHeaders returns the headers used when a descriptor sets none.
func DefaultHeaders() map[string]string {
	return map[string]string{constants.HeaderContentType: constants.MediaTypeJSON}
}

// Response is the raw response handed to response transforms and interceptors.
type Response struct {
	StatusCode int
	Header     http.Header
	body       []byte
}

// NewResponse builds a Response. Mostly useful for testing transforms.
func NewResponse(statusCode int, header http.Header, body []byte) *Response {
	if header == nil {
		header = make(http.Header)
	}

	return &Response{StatusCode: statusCode, Header: header, body: body}
}

// Body returns the raw body bytes.
func (r *Response) Body() []byte {
	return r.body
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.body)
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.body, v)
}

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string {
	return r.Header.Get(constants.HeaderContentType)
}

// IsJSON reports whether the content type declares JSON.
func (r *Response) IsJSON() bool {
	contentType := strings.ToLower(r.ContentType())

	return strings.Contains(contentType, constants.MediaTypeJSON) ||
		strings.Contains(contentType, "+json")
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= constants.HTTPStatusSuccessMin && r.StatusCode <= constants.HTTPStatusSuccessMax
}
