package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

const fingerprintContentChars = 512

// Fingerprint computes the stable de-dup key for a raw result: the
// canonical URL when present, otherwise a composite of source, normalized
// title, and a hash of the first N characters of the raw content.
func Fingerprint(sourceID, title, rawURL, rawContent string) string {
	if canon := CanonicalizeURL(rawURL); canon != "" {
		return canon
	}
	head := rawContent
	if len(head) > fingerprintContentChars {
		head = head[:fingerprintContentChars]
	}
	sum := sha256.Sum256([]byte(head))
	return sourceID + "|" + normalizeTitle(title) + "|" + hex.EncodeToString(sum[:])
}

// CanonicalizeURL lowercases the scheme/host and strips common tracking
// query parameters, returning "" if rawURL is empty or unparsable.
func CanonicalizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || lower == "ref" || lower == "fbclid" || lower == "gclid" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
