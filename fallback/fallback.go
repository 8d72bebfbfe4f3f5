// Package fallback walks ordered candidate lists.
package fallback

// FirstMatch calls try on each item in order and returns the first result
// for which try reports true, together with the item that produced it.
func FirstMatch[T, R any](items []T, try func(T) (R, bool)) (R, T, bool) {
	for _, item := range items {
		if result, ok := try(item); ok {
			return result, item, true
		}
	}

	var (
		zeroR R
		zeroT T
	)
	return zeroR, zeroT, false
}
