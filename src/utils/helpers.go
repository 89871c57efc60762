package utils

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/gosimple/slug"
)

// WithSuffix appends the environment name to a queue or topic name so
// local, test and production traffic never share a channel.
func WithSuffix(name string) string {
	env := os.Getenv("API_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("%s-%s", name, env)
}

// UniqueSlug builds a URL-safe slug from title, suffixed when taken is
// true for the base form.
func UniqueSlug(title string, taken func(s string) bool) string {
	base := slug.Make(title)
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !taken(candidate) {
			return candidate
		}
	}
}

// PlatformFee returns the marketplace commission in minor units for a
// captured amount. Rate is expressed in basis points.
func PlatformFee(amount int64, rateBps int64) int64 {
	if amount <= 0 || rateBps <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * float64(rateBps) / 10000.0))
}

// MaskEmail hides the local part of an address for logs.
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 1 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}
