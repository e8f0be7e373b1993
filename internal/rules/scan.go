package rules

import "fmt"

// asString and asFloat tolerate the TDengine driver's dynamic value
// types the same way internal/tsdb/translate.go does, since query rows
// here come from the same driver.
func asString(v any) string {
	if v == nil {
		return ""
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}
