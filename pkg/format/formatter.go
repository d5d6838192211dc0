package format

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/leapstack-labs/quill/pkg/types"
)

// Formatter renders any runtime value as text. Formatting never fails.
type Formatter interface {
	Format(v any) string
}

// DefaultTimeLayout is used for time values when no layout is configured.
const DefaultTimeLayout = "2006-01-02 15:04:05"

// ValueFormatter is the default Formatter. Numbers are grouped by locale
// when one is set.
type ValueFormatter struct {
	printer    *message.Printer
	timeLayout string
	nullText   string
}

// Option configures a ValueFormatter.
type Option func(*ValueFormatter)

// WithLocale enables locale-aware number formatting, e.g. "en" or "de-CH".
func WithLocale(tag string) Option {
	return func(f *ValueFormatter) {
		if tag == "" {
			f.printer = nil
			return
		}
		f.printer = message.NewPrinter(language.Make(tag))
	}
}

// WithTimeLayout sets the layout for time.Time values.
func WithTimeLayout(layout string) Option {
	return func(f *ValueFormatter) { f.timeLayout = layout }
}

// WithNullText sets the text for nil. The default is empty.
func WithNullText(s string) Option {
	return func(f *ValueFormatter) { f.nullText = s }
}

// NewFormatter creates a ValueFormatter.
func NewFormatter(opts ...Option) *ValueFormatter {
	f := &ValueFormatter{timeLayout: DefaultTimeLayout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *ValueFormatter) Format(v any) string {
	switch x := v.(type) {
	case nil:
		return f.nullText
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case rune:
		return string(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(f.timeLayout)
	case time.Duration:
		return x.String()
	case float32:
		return f.float(float64(x), 32)
	case float64:
		return f.float(x, 64)
	case types.MapEntry:
		return f.Format(x.Key) + "=" + f.Format(x.Value)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	if i, ok := types.ToInt64(v); ok {
		if f.printer != nil {
			return f.printer.Sprint(number.Decimal(i))
		}
		return strconv.FormatInt(i, 10)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return f.list(v, "[", "]")
	case reflect.Map:
		return f.list(v, "{", "}")
	case reflect.Pointer:
		rv := reflect.ValueOf(v)
		if rv.IsNil() {
			return f.nullText
		}
		return f.Format(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

func (f *ValueFormatter) float(x float64, bits int) string {
	if f.printer != nil {
		return f.printer.Sprint(number.Decimal(x))
	}
	return strconv.FormatFloat(x, 'f', -1, bits)
}

func (f *ValueFormatter) list(v any, open, close string) string {
	items, err := types.Iterate(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = f.Format(item)
	}
	return open + strings.Join(parts, ", ") + close
}
