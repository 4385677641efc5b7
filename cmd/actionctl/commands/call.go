package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xjectro/actionkit/internal/constants"
	"github.com/xjectro/actionkit/pkg/action"
)

type callOptions struct {
	data     string
	dataFile string
	fields   []string
	files    []string
}

// NewCallCommand creates the call command.
func NewCallCommand() *cobra.Command {
	opts := &callOptions{}

	cmd := &cobra.Command{
		Use:   "call NAME",
		Short: "Call an action from the catalog",
		Long: `Call a named action from the catalog and print its result.

The payload is given as JSON (--data or --data-file) or as form fields
(--field, --file). For GET actions the payload becomes query parameters; for
other methods JSON is sent as the body and fields are sent as
multipart/form-data.`,
		Example: `  actionctl call list-users
  actionctl call create-user --data '{"name":"ada"}'
  actionctl call upload-avatar --field user=1 --file avatar=./me.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "JSON payload")
	cmd.Flags().StringVar(&opts.dataFile, "data-file", "", "read the JSON payload from a file (- for stdin)")
	cmd.Flags().StringArrayVarP(&opts.fields, "field", "f", nil, "form or query field as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.files, "file", nil, "multipart file as field=path (repeatable)")

	return cmd
}

func runCall(cmd *cobra.Command, name string, opts *callOptions) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	cat, err := rt.loadCatalog()
	if err != nil {
		return err
	}

	entry, err := cat.Lookup(name)
	if err != nil {
		return err
	}

	method, err := action.ParseMethod(entry.Method)
	if err != nil {
		return err
	}

	payload, err := opts.payload(cmd.InOrStdin(), method)
	if err != nil {
		return err
	}

	registry, err := cat.Build(rt.factory, rt.store)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := registry.Call(ctx, name, payload)
	if err != nil {
		return err
	}

	return renderResult(cmd.OutOrStdout(), format, result)
}

// payload builds the call payload from the flags. It returns nil when no
// payload flag was given.
func (o *callOptions) payload(stdin io.Reader, method action.Method) (any, error) {
	hasData := o.data != "" || o.dataFile != ""
	hasForm := len(o.fields) > 0 || len(o.files) > 0

	if hasData && hasForm {
		return nil, constants.ErrDataAndForm
	}

	if hasData {
		return o.jsonPayload(stdin)
	}

	if !hasForm {
		return nil, nil
	}

	fields, err := parsePairs(o.fields)
	if err != nil {
		return nil, err
	}

	if method == action.MethodGet && len(o.files) == 0 {
		query := make(map[string]any, len(fields))
		for _, pair := range fields {
			query[pair[0]] = pair[1]
		}

		return query, nil
	}

	return buildForm(fields, o.files)
}

func (o *callOptions) jsonPayload(stdin io.Reader) (any, error) {
	raw := []byte(o.data)

	if o.dataFile != "" {
		var err error

		if o.dataFile == "-" {
			raw, err = io.ReadAll(stdin)
		} else {
			raw, err = os.ReadFile(filepath.Clean(o.dataFile))
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
	}

	var payload any

	err := json.Unmarshal(raw, &payload)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}

	return payload, nil
}

func parsePairs(values []string) ([][2]string, error) {
	pairs := make([][2]string, 0, len(values))

	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", constants.ErrInvalidFieldFormat, value)
		}

		pairs = append(pairs, [2]string{key, val})
	}

	return pairs, nil
}

func buildForm(fields [][2]string, files []string) (*action.Form, error) {
	form := action.NewForm()

	for _, pair := range fields {
		err := form.AddField(pair[0], pair[1])
		if err != nil {
			return nil, err
		}
	}

	filePairs, err := parsePairs(files)
	if err != nil {
		return nil, err
	}

	for _, pair := range filePairs {
		err := addFile(form, pair[0], pair[1])
		if err != nil {
			return nil, err
		}
	}

	return form, nil
}

func addFile(form *action.Form, field, path string) error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	defer func() { _ = file.Close() }()

	return form.AddFile(field, filepath.Base(path), file)
}
