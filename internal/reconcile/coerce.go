package reconcile

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// IsDateLike reports whether a field name suggests it holds a date.
func IsDateLike(field string) bool {
	lower := strings.ToLower(field)
	return strings.Contains(lower, "date") || strings.Contains(lower, "dob") || strings.Contains(lower, "birth")
}

// CellValue turns a raw spreadsheet cell into the stored card value. Excel
// date serials in date-like columns become DD-MM-YYYY, integral numbers
// lose their ".0", and everything is upper-cased.
func CellValue(field, raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		if IsDateLike(field) && n > 1 && n < 60000 {
			return excelEpoch.AddDate(0, 0, int(n)).Format("02-01-2006")
		}
		if n == math.Trunc(n) && math.Abs(n) < 1e15 && strings.Contains(value, ".") {
			return strconv.FormatInt(int64(n), 10)
		}
	}
	return strings.ToUpper(value)
}
