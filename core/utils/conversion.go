package utils

import (
	"fmt"
	"strconv"
)

// ToString converts various types to string.
// JSON numbers arrive as float64; integral values are rendered without a
// fractional part so alias substitutions stay readable.
func ToString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
