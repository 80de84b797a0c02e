package pubforge

import (
	"math/rand"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify converts a title to a URL-safe slug. Diacritics are folded to their
// base letters ("Việt Nam" → "viet-nam"); everything outside [a-z0-9] becomes
// a single hyphen.
func Slugify(s string) string {
	s = stripDiacritics(s)
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// stripDiacritics decomposes to NFD and drops combining marks.
func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// idAlphabet is Crockford base32: no I, L, O, U.
const idAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// AssetID returns a 26-character sortable identifier: 10 characters encoding
// the current millisecond timestamp (most significant first) followed by 16
// random characters. Not cryptographically secure; it only needs to keep
// asset filenames unique.
func AssetID() string {
	return assetIDAt(time.Now().UnixMilli())
}

func assetIDAt(ms int64) string {
	var b [26]byte
	for i := 9; i >= 0; i-- {
		b[i] = idAlphabet[ms%32]
		ms /= 32
	}
	for i := 10; i < 26; i++ {
		b[i] = idAlphabet[rand.Intn(32)]
	}
	return string(b[:])
}

// ExtForContentType maps an image content type to a file extension.
// Unknown or empty types fall back to png.
func ExtForContentType(ct string) string {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "image/jpeg"), strings.Contains(ct, "image/jpg"):
		return "jpg"
	case strings.Contains(ct, "image/webp"):
		return "webp"
	case strings.Contains(ct, "image/svg"):
		return "svg"
	default:
		return "png"
	}
}

const assetRoot = "/assets/images/"

// RelPathForCollection converts a public asset path into the relative path a
// document in the given collection uses in its front matter. Paths outside the
// asset root (external URLs) are returned unchanged. "pages" documents sit one
// level above the shared asset directory; every other collection sits two.
func RelPathForCollection(publicPath, collection string) string {
	clean := publicPath
	if strings.HasPrefix(clean, "/") {
		clean = "/" + strings.TrimLeft(clean, "/")
	}
	if !strings.HasPrefix(clean, assetRoot) {
		return clean
	}
	suffix := strings.TrimPrefix(clean, assetRoot)
	if collection == "pages" {
		return "../assets/images/" + suffix
	}
	return "../../assets/images/" + suffix
}

// DateStamp returns the current date as YYYY-MM-DD.
func DateStamp(t time.Time) string {
	return t.Format("2006-01-02")
}

// PublishedStamp returns the minute-precision timestamp used in front matter.
func PublishedStamp(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}
