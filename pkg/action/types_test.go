package action_test

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xjectro/actionkit/internal/constants"
	"github.com/xjectro/actionkit/pkg/action"
)

func TestParseMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  action.Method
	}{
		{"", action.MethodPost},
		{"get", action.MethodGet},
		{" Patch ", action.MethodPatch},
		{"DELETE", action.MethodDelete},
		{"put", action.MethodPut},
	}

	for _, tt := range tests {
		got, err := action.ParseMethod(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}

	_, err := action.ParseMethod("HEAD")
	require.ErrorIs(t, err, constants.ErrUnsupportedMethod)
}

func TestTags_Unmarshal(t *testing.T) {
	t.Parallel()

	type holder struct {
		Tags action.Tags `json:"tags" yaml:"tags"`
	}

	var fromJSON holder

	require.NoError(t, json.Unmarshal([]byte(`{"tags":"users"}`), &fromJSON))
	assert.Equal(t, action.Tags{"users"}, fromJSON.Tags)

	require.NoError(t, json.Unmarshal([]byte(`{"tags":["a","b"]}`), &fromJSON))
	assert.Equal(t, action.Tags{"a", "b"}, fromJSON.Tags)

	require.Error(t, json.Unmarshal([]byte(`{"tags":{"x":1}}`), &fromJSON))

	var fromYAML holder

	require.NoError(t, yaml.Unmarshal([]byte("tags: users\n"), &fromYAML))
	assert.Equal(t, action.Tags{"users"}, fromYAML.Tags)

	require.NoError(t, yaml.Unmarshal([]byte("tags: [a, b]\n"), &fromYAML))
	assert.Equal(t, action.Tags{"a", "b"}, fromYAML.Tags)

	require.Error(t, yaml.Unmarshal([]byte("tags: {x: 1}\n"), &fromYAML))
}

func TestResponse(t *testing.T) {
	t.Parallel()

	resp := action.NewResponse(http.StatusOK, http.Header{"Content-Type": []string{"application/problem+json"}}, []byte(`{"a":1}`))
	assert.True(t, resp.OK())
	assert.True(t, resp.IsJSON())
	assert.Equal(t, `{"a":1}`, resp.Text())

	var decoded map[string]int

	require.NoError(t, resp.JSON(&decoded))
	assert.Equal(t, 1, decoded["a"])

	empty := action.NewResponse(http.StatusMultipleChoices, nil, nil)
	assert.False(t, empty.OK())
	assert.False(t, empty.IsJSON())
	assert.Empty(t, empty.ContentType())
}

func TestForm(t *testing.T) {
	t.Parallel()

	form := action.NewForm()
	require.NoError(t, form.AddField("title", "report"))
	require.NoError(t, form.AddFile("doc", "r.txt", strings.NewReader("hello")))

	body, err := form.Bytes()
	require.NoError(t, err)

	again, err := form.Bytes()
	require.NoError(t, err)
	assert.Equal(t, body, again)

	require.ErrorIs(t, form.AddField("late", "x"), action.ErrFormClosed)
	require.ErrorIs(t, form.AddFile("late", "x", strings.NewReader("")), action.ErrFormClosed)

	mediaType, params, err := mime.ParseMediaType(form.ContentType())
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	reader := multipart.NewReader(strings.NewReader(string(body)), params["boundary"])

	part, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "title", part.FormName())

	part, err = reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "r.txt", part.FileName())

	content, err := io.ReadAll(part)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}
