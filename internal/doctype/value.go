package doctype

import (
	"fmt"
	"strconv"
)

// FormatValue renders a raw record value as text. JSON numbers print without
// exponent or trailing zeros; nil is empty.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
