package util

import "errors"

var (
	ErrNoElement        = errors.New("util: no element found")
	ErrMultipleElements = errors.New("util: multiple elements found")
)

// GetOne returns the only value in m. Discord resolves one entry per
// option, so anything else means the interaction is malformed.
func GetOne[K comparable, T any](m map[K]T) (T, error) {
	var zero T
	switch len(m) {
	case 0:
		return zero, ErrNoElement
	case 1:
		for _, v := range m {
			return v, nil
		}
	}
	return zero, ErrMultipleElements
}
