package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// ErrTextResponse is returned when a non-JSON response cannot be stored in
// the action's output type.
var ErrTextResponse = errors.New("response is not JSON and the output type cannot hold text")

// decodeResponse applies the default parsing rules: JSON when the content type
// says so, raw text otherwise. An empty body yields the zero value.
func decodeResponse[Out any](resp *Response) (Out, error) {
	var out Out

	if len(resp.Body()) == 0 {
		return out, nil
	}

	if resp.IsJSON() {
		err := json.Unmarshal(resp.Body(), &out)
		if err != nil {
			return out, fmt.Errorf("failed to decode JSON response: %w", err)
		}

		return out, nil
	}

	switch target := any(&out).(type) {
	case *string:
		*target = resp.Text()
	case *any:
		*target = resp.Text()
	case *[]byte:
		*target = append([]byte(nil), resp.Body()...)
	default:
		rv := reflect.ValueOf(&out).Elem()

		switch {
		case rv.Kind() == reflect.String:
			rv.SetString(resp.Text())
		case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
			rv.SetBytes(append([]byte(nil), resp.Body()...))
		default:
			return out, fmt.Errorf("%w: %T", ErrTextResponse, out)
		}
	}

	return out, nil
}
