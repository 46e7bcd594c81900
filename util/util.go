package util

import "fmt"

// Unpacks a slice into arguments
// If the slice has less elements than variables passed in, the rest of the variables are not modified
// If the slice has more elements than the variables passed in, the additional elements are ignored
func Unpack[T any](toUnpack []T, unpackInto ...*T) {
	if len(toUnpack) > len(unpackInto) {
		for i := range unpackInto {
			*unpackInto[i] = toUnpack[i]
		}
	} else {
		for i, val := range toUnpack {
			*unpackInto[i] = val
		}
	}
}

// FormatBytes renders a byte count the way a human wants to read it
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
