package crawler

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var invalidSegmentChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// OutputName derives the output file name for a category from pattern, which
// must contain a single %s verb.
func OutputName(pattern, categoryID string) string {
	return fmt.Sprintf(pattern, safeSegment(categoryID, categoryID))
}

// ImageKey derives the store-relative image path
// <prefix><category>/<detailID>/<baseName>. The detail identifier keeps
// records with distinct detail pages from colliding.
func ImageKey(prefix, categoryID, detailURL, imageURL string) string {
	return path.Join(
		prefix+safeSegment(categoryID, categoryID),
		DetailID(detailURL),
		safeSegment(lastSegment(imageURL), imageURL),
	)
}

// DetailID returns the last path segment of a detail URL.
func DetailID(detailURL string) string {
	return safeSegment(lastSegment(detailURL), detailURL)
}

// ResolveReference resolves ref against base; ref is returned untouched when
// either fails to parse.
func ResolveReference(base, ref string) string {
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return refURL.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

func lastSegment(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// safeSegment sanitizes seg for use as a single path element. A segment that
// had to be rewritten gets a short hash of the original inserted before its
// extension, so distinct inputs never map to the same element. When nothing
// usable remains the result is a hash of source.
func safeSegment(seg, source string) string {
	clean := invalidSegmentChars.ReplaceAllString(seg, "_")
	clean = strings.Trim(clean, ".")
	if clean == "" {
		return hashString(source)[:16]
	}
	if clean == seg {
		return seg
	}
	ext := path.Ext(clean)
	return strings.TrimSuffix(clean, ext) + "-" + hashString(seg)[:8] + ext
}

func hashString(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
