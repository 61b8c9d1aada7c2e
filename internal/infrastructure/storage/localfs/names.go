package localfs

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxStemLen = 64

var (
	uploadUnsafe  = regexp.MustCompile(`[^0-9A-Za-z가-힣._-]+`)
	storedUnsafe  = regexp.MustCompile(`[^\w.\-]+`)
	underscoreRun = regexp.MustCompile(`_+`)
	spaceRun      = regexp.MustCompile(`\s+`)
	idPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// SanitizeUploadName keeps Hangul and ASCII word characters, replacing
// everything else (path separators included) with underscores.
func SanitizeUploadName(name string) string {
	n := strings.TrimSpace(norm.NFC.String(name))
	n = strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(n)
	n = spaceRun.ReplaceAllString(n, " ")
	n = uploadUnsafe.ReplaceAllString(n, "_")
	n = underscoreRun.ReplaceAllString(n, "_")
	if n == "" || n == "." || n == "_" {
		return "file.pdf"
	}
	return n
}

// StoredName derives the permanent ASCII file name:
// <sanitized stem>_<sha1(original+hash+batch)[:8]>.<lower ext>.
func StoredName(original, contentHash, batchID string) string {
	rawExt := filepath.Ext(original)
	stem := cleanASCII(strings.TrimSuffix(original, rawExt))
	if len(stem) > maxStemLen {
		stem = strings.Trim(stem[:maxStemLen], "._")
	}
	if stem == "" {
		stem = "file"
	}
	ext := strings.ToLower(cleanASCII(strings.TrimPrefix(rawExt, ".")))
	if ext != "" {
		ext = "." + ext
	}

	sum := sha1.Sum([]byte(original + contentHash + batchID))
	return stem + "_" + hex.EncodeToString(sum[:])[:8] + ext
}

func cleanASCII(s string) string {
	s = storedUnsafe.ReplaceAllString(asciiFold(s), "_")
	return strings.Trim(underscoreRun.ReplaceAllString(s, "_"), "._")
}

func asciiFold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, s)
	if err != nil {
		return ""
	}
	return out
}

// ValidID reports whether id is safe to use as a path segment.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
