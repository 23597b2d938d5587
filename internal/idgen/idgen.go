// Package idgen generates classified-ad identifiers.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// AdPrefix starts every generated ad id.
const AdPrefix = "ad-"

// alphabet is lowercase so ids are safe in stream names and URLs alike.
const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of random characters after the prefix.
const Length = 12

// NewAdID returns a fresh ad id such as "ad-3k9x0q2m7c1z".
func NewAdID() (string, error) {
	return newID(AdPrefix)
}

func newID(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
