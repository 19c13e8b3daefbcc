package optimize

import (
	"fmt"
	"math"
	"os"
	"strconv"
)

var byteUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatBytes renders n in base-1024 units with up to two decimals,
// e.g. "0 Bytes", "1 KB", "1.5 KB".
func FormatBytes(n int64) string {
	if n == 0 {
		return "0 Bytes"
	}

	sign := ""
	f := float64(n)
	if f < 0 {
		sign = "-"
		f = -f
	}

	i := 0
	for f >= 1024 && i < len(byteUnits)-1 {
		f /= 1024
		i++
	}

	v := math.Round(f*100) / 100
	return sign + strconv.FormatFloat(v, 'f', -1, 64) + " " + byteUnits[i]
}

// FileSize returns the size of path in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Savings returns the percentage saved going from original to optimized.
// ok is false when original is zero and no percentage exists.
func Savings(original, optimized int64) (pct float64, ok bool) {
	if original == 0 {
		return 0, false
	}
	return float64(original-optimized) / float64(original) * 100, true
}

// FormatSavings renders Savings with one decimal place, or "N/A".
func FormatSavings(original, optimized int64) string {
	pct, ok := Savings(original, optimized)
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", pct)
}
