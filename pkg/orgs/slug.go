package orgs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

const (
	MinSlugLength = 3
	MaxSlugLength = 50
	MaxNameLength = 100

	maxSlugAttempts = 100
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidateSlug checks the slug format and length
func ValidateSlug(slug string) error {
	if len(slug) < MinSlugLength || len(slug) > MaxSlugLength {
		return apperr.Validation("slug", fmt.Sprintf("must be between %d and %d characters", MinSlugLength, MaxSlugLength))
	}
	if !slugPattern.MatchString(slug) {
		return apperr.Validation("slug", "may only contain lowercase letters, digits and hyphens")
	}
	return nil
}

// ValidateName checks an organization display name
func ValidateName(name string) error {
	n := len([]rune(strings.TrimSpace(name)))
	if n == 0 || n > MaxNameLength {
		return apperr.Validation("name", fmt.Sprintf("must be between 1 and %d characters", MaxNameLength))
	}
	return nil
}

// Slugify lowercases name and joins its alphanumeric runs with single hyphens.
// The result always passes ValidateSlug.
func Slugify(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}

	slug := sb.String()
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	for len(slug) < MinSlugLength {
		if slug == "" {
			slug = "org"
		} else {
			slug += "-org"
		}
	}
	return slug
}

// GenerateSlug returns the first free slug among base, base-1, base-2, ...
// where base is Slugify(name). Call it inside the transaction that inserts the
// organization; the unique index still arbitrates concurrent signups.
func GenerateSlug(ctx context.Context, tx store.Tx, name string) (string, error) {
	base := Slugify(name)
	for i := 0; i < maxSlugAttempts; i++ {
		candidate := withSuffix(base, i)
		exists, err := tx.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}

	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate slug suffix: %w", err)
	}
	return withSuffixString(base, hex.EncodeToString(b)), nil
}

func withSuffix(base string, n int) string {
	if n == 0 {
		return base
	}
	return withSuffixString(base, strconv.Itoa(n))
}

// withSuffixString appends "-suffix", trimming base so the result fits MaxSlugLength
func withSuffixString(base, suffix string) string {
	room := MaxSlugLength - len(suffix) - 1
	if len(base) > room {
		base = strings.TrimRight(base[:room], "-")
	}
	return base + "-" + suffix
}
