package action

import (
	"encoding"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/xjectro/actionkit/internal/constants"
)

// isDefined reports whether v carries a value. Nil interfaces, pointers,
// maps, slices, funcs and channels are undefined.
func isDefined(v any) bool {
	if v == nil {
		return false
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() { //nolint:exhaustive // only nillable kinds matter
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return true
	}
}

// resolveURL concatenates base and endpoint. The base must be an absolute
// http(s) URL.
func resolveURL(base, endpoint string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", constants.ErrBaseURLRequired
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %w", constants.ErrBaseURLInvalid, err)
	}

	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", constants.ErrBaseURLInvalid, base)
	}

	return base + endpoint, nil
}

// encodedRequest is the method-specific encoding of one call.
type encodedRequest struct {
	url         string
	headers     http.Header
	body        []byte
	contentType string
}

// encodeRequest applies the method-specific payload rules. headers is never
// modified; a derived copy is returned.
func encodeRequest(method Method, target string, headers http.Header, payload any) (*encodedRequest, error) {
	req := &encodedRequest{url: target, headers: headers.Clone()}
	if req.headers == nil {
		req.headers = make(http.Header)
	}

	if !isDefined(payload) {
		return req, nil
	}

	if method == MethodGet {
		params, ok, err := queryParams(payload)
		if err != nil {
			return nil, err
		}

		if ok {
			req.url = appendQuery(target, params)
		}

		return req, nil
	}

	if form, ok := payload.(*Form); ok {
		body, err := form.Bytes()
		if err != nil {
			return nil, err
		}

		req.headers.Del(constants.HeaderContentType)
		req.body = body
		req.contentType = form.ContentType()

		return req, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req.body = body

	return req, nil
}

type queryParam struct {
	key   string
	value string
}

func appendQuery(target string, params []queryParam) string {
	if len(params) == 0 {
		return target
	}

	var builder strings.Builder

	builder.WriteString(target)

	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}

	for _, param := range params {
		builder.WriteString(separator)
		builder.WriteString(url.QueryEscape(param.key))
		builder.WriteByte('=')
		builder.WriteString(url.QueryEscape(param.value))

		separator = "&"
	}

	return builder.String()
}

// queryParams flattens a key-value payload. The boolean is false when the
// payload is not key-value shaped.
func queryParams(payload any) ([]queryParam, bool, error) {
	if values, ok := payload.(url.Values); ok {
		return valuesParams(values), true, nil
	}

	rv := reflect.ValueOf(payload)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false, nil
		}

		rv = rv.Elem()
	}

	switch rv.Kind() { //nolint:exhaustive // everything else is not key-value
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false, nil
		}

		params, err := mapParams(rv)

		return params, true, err
	case reflect.Struct:
		if _, ok := rv.Interface().(encoding.TextMarshaler); ok {
			return nil, false, nil
		}

		var params []queryParam

		err := structParams(rv, &params)

		return params, true, err
	default:
		return nil, false, nil
	}
}

func valuesParams(values url.Values) []queryParam {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	var params []queryParam

	for _, key := range keys {
		for _, value := range values[key] {
			params = append(params, queryParam{key: key, value: value})
		}
	}

	return params
}

func mapParams(rv reflect.Value) ([]queryParam, error) {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	params := make([]queryParam, 0, len(keys))

	for _, key := range keys {
		value, ok, err := queryValue(rv.MapIndex(key))
		if err != nil {
			return nil, fmt.Errorf("query parameter %q: %w", key.String(), err)
		}

		if ok {
			params = append(params, queryParam{key: key.String(), value: value})
		}
	}

	return params, nil
}

func structParams(rv reflect.Value, params *[]queryParam) error {
	rt := rv.Type()

	for i := range rt.NumField() {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		name, omitEmpty, skip := jsonFieldName(field)
		if skip {
			continue
		}

		fv := rv.Field(i)

		if field.Anonymous && name == "" {
			embedded := fv
			for embedded.Kind() == reflect.Pointer {
				if embedded.IsNil() {
					break
				}

				embedded = embedded.Elem()
			}

			if embedded.Kind() == reflect.Struct {
				err := structParams(embedded, params)
				if err != nil {
					return err
				}

				continue
			}
		}

		if name == "" {
			name = field.Name
		}

		if omitEmpty && fv.IsZero() {
			continue
		}

		value, ok, err := queryValue(fv)
		if err != nil {
			return fmt.Errorf("query parameter %q: %w", name, err)
		}

		if ok {
			*params = append(*params, queryParam{key: name, value: value})
		}
	}

	return nil
}

func jsonFieldName(field reflect.StructField) (string, bool, bool) {
	tag, ok := field.Tag.Lookup("json")
	if !ok {
		return "", false, false
	}

	if tag == "-" {
		return "", false, true
	}

	name, options, _ := strings.Cut(tag, ",")
	omitEmpty := false

	for _, option := range strings.Split(options, ",") {
		if option == "omitempty" || option == "omitzero" {
			omitEmpty = true
		}
	}

	return name, omitEmpty, false
}

// queryValue converts one entry to its string form. The boolean is false for
// nil entries, which are omitted from the query.
func queryValue(rv reflect.Value) (string, bool, error) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", false, nil
		}

		if marshaler, ok := rv.Interface().(encoding.TextMarshaler); ok {
			return marshalText(marshaler)
		}

		rv = rv.Elem()
	}

	if !rv.IsValid() {
		return "", false, nil
	}

	if rv.CanInterface() {
		if marshaler, ok := rv.Interface().(encoding.TextMarshaler); ok {
			return marshalText(marshaler)
		}
	}

	switch rv.Kind() { //nolint:exhaustive // scalars fall through to cast
	case reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return "", false, nil
		}

		if rv.Kind() == reflect.Map {
			return jsonValue(rv)
		}

		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes()), true, nil
		}

		return joinValues(rv)
	case reflect.Array:
		return joinValues(rv)
	case reflect.Struct:
		return jsonValue(rv)
	case reflect.Func, reflect.Chan:
		return "", false, nil
	}

	value, err := cast.ToStringE(rv.Interface())
	if err != nil {
		return fmt.Sprint(rv.Interface()), true, nil
	}

	return value, true, nil
}

func marshalText(marshaler encoding.TextMarshaler) (string, bool, error) {
	text, err := marshaler.MarshalText()
	if err != nil {
		return "", false, err
	}

	return string(text), true, nil
}

func jsonValue(rv reflect.Value) (string, bool, error) {
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return "", false, err
	}

	return string(data), true, nil
}

// joinValues renders a list as comma separated elements; nil elements render
// as empty strings.
func joinValues(rv reflect.Value) (string, bool, error) {
	parts := make([]string, 0, rv.Len())

	for i := range rv.Len() {
		value, _, err := queryValue(rv.Index(i))
		if err != nil {
			return "", false, err
		}

		parts = append(parts, value)
	}

	return strings.Join(parts, ","), true, nil
}
