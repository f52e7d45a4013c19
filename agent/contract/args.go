package contract

import "strings"

// StringArg reads a trimmed string argument, empty when absent.
func StringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// BytesArg reads a raw byte-slice argument, nil when absent.
func BytesArg(args map[string]any, key string) []byte {
	b, _ := args[key].([]byte)
	return b
}

// Int64Arg reads a numeric argument regardless of how it survived JSON
// transport. Zero means absent.
func Int64Arg(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
