package supervisornode

import (
	"strconv"
	"strings"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
)

func recString(rec contractx.Record, key string) string {
	if rec == nil {
		return ""
	}
	s, _ := rec[key].(string)
	return strings.TrimSpace(s)
}

func recBool(rec contractx.Record, key string) bool {
	if rec == nil {
		return false
	}
	b, _ := rec[key].(bool)
	return b
}

// recInt64 tolerates the numeric types a record may carry after a JSON
// round-trip.
func recInt64(rec contractx.Record, key string) (int64, bool) {
	if rec == nil {
		return 0, false
	}
	switch v := rec[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func notFoundRecord(reason string) contractx.Record {
	rec := contractx.Record{"found": false}
	if reason != "" {
		rec["reason"] = reason
	}
	return rec
}
