package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/xjectro/actionkit/internal/config"
	"github.com/xjectro/actionkit/internal/constants"
	"github.com/xjectro/actionkit/pkg/action"
	"github.com/xjectro/actionkit/pkg/catalog"
	"github.com/xjectro/actionkit/pkg/tagcache"
)

// runtime is everything a command needs to call actions.
type runtime struct {
	settings *config.Settings
	logger   *slog.Logger
	store    tagcache.Store
	factory  *action.Factory
}

// newRuntime loads settings from the global viper instance and builds the
// cache and action factory. Logs go to errOut.
func newRuntime(errOut io.Writer) (*runtime, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger := settings.NewLogger(errOut)

	store, err := tagcache.NewCacheFromConfig(settings.CacheConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	factory, err := action.NewFactory(settings.FactoryConfig(action.NewSlogLogger(logger), store))
	if err != nil {
		closeStore(store)

		return nil, err
	}

	return &runtime{settings: settings, logger: logger, store: store, factory: factory}, nil
}

func (r *runtime) Close() {
	closeStore(r.store)
}

func closeStore(store tagcache.Store) {
	if closer, ok := store.(io.Closer); ok {
		_ = closer.Close()
	}
}

// loadCatalog loads the configured catalog file.
func (r *runtime) loadCatalog() (*catalog.Catalog, error) {
	return loadCatalog(r.settings.Catalog)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return nil, constants.ErrCatalogRequired
	}

	return catalog.LoadFile(path)
}

// outputFormat returns the validated output format.
func outputFormat() (string, error) {
	output := viper.GetString(config.KeyOutput)

	switch output {
	case constants.FormatTable, constants.FormatJSON, constants.FormatYAML:
		return output, nil
	default:
		return "", fmt.Errorf("%w: %q", constants.ErrInvalidOutput, output)
	}
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", constants.JSONIndent)

	return encoder.Encode(value)
}

func writeYAML(w io.Writer, value any) error {
	encoder := yaml.NewEncoder(w)
	defer func() { _ = encoder.Close() }()

	return encoder.Encode(value)
}

// renderResult prints an action result in the selected format. Tables show
// objects as property/value rows and lists of objects as one row per item.
func renderResult(w io.Writer, format string, result any) error {
	switch format {
	case constants.FormatJSON:
		return writeJSON(w, result)
	case constants.FormatYAML:
		return writeYAML(w, result)
	}

	switch value := result.(type) {
	case nil:
		return nil
	case string:
		_, err := fmt.Fprintln(w, value)

		return err
	case map[string]any:
		return renderObject(w, value)
	case []any:
		if rows, ok := objectRows(value); ok {
			return renderRows(w, rows)
		}

		return writeJSON(w, value)
	default:
		return writeJSON(w, value)
	}
}

func renderObject(w io.Writer, object map[string]any) error {
	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.Header("Property", "Value")

	for _, key := range keys {
		_ = table.Append(key, cellValue(object[key]))
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func objectRows(items []any) ([]map[string]any, bool) {
	rows := make([]map[string]any, 0, len(items))

	for _, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}

		rows = append(rows, row)
	}

	return rows, true
}

func renderRows(w io.Writer, rows []map[string]any) error {
	seen := map[string]bool{}

	var columns []string

	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}

	sort.Strings(columns)

	table := tablewriter.NewWriter(w)

	header := make([]any, 0, len(columns))
	for _, column := range columns {
		header = append(header, strings.ToUpper(column))
	}

	table.Header(header...)

	for _, row := range rows {
		cells := make([]any, 0, len(columns))
		for _, column := range columns {
			cells = append(cells, cellValue(row[column]))
		}

		_ = table.Append(cells...)
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

// cellValue renders scalars as text and nested values as compact JSON.
func cellValue(value any) string {
	switch value.(type) {
	case nil:
		return constants.NotAvailable
	case map[string]any, []any:
		data, err := json.Marshal(value)
		if err != nil {
			return constants.NotAvailable
		}

		return truncate(string(data))
	default:
		return truncate(cast.ToString(value))
	}
}

func truncate(s string) string {
	if len(s) <= constants.StringTruncationLimit {
		return s
	}

	return s[:constants.StringTruncationLimit-3] + "..."
}

// PrintError writes err to w, adding the status and raw body of HTTP
// failures.
func PrintError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	_, _ = red.Fprint(w, "Error: ")
	_, _ = fmt.Fprintln(w, err)

	var httpErr *action.HTTPError
	if errors.As(err, &httpErr) && len(httpErr.Body) > 0 {
		_, _ = fmt.Fprintf(w, "Response body: %s\n", truncateBody(httpErr.Body))
	}
}

func truncateBody(body []byte) string {
	const limit = 1024

	if len(body) <= limit {
		return string(body)
	}

	return string(body[:limit]) + "..."
}

func printSuccess(w io.Writer, format string, args ...any) {
	_, _ = color.New(color.FgGreen).Fprintf(w, format+"\n", args...)
}
