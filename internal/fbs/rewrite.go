package fbs

import (
	"regexp"
	"strings"
)

// The agency segment sits directly after "external" in the request path,
// optionally separated by a version segment such as "v1". It holds either
// the literal placeholder "agencyid", a bare agency id, or an isil-style
// "DK-" prefixed id.
var versionSegment = regexp.MustCompile(`(?i)^v\d+$`)

// AgencyPathValue returns the raw value in the agency position of the
// path, or "" when the path has no agency segment.
func AgencyPathValue(path string) string {
	segments := splitPath(path)
	index := agencySegmentIndex(segments)
	if index < 0 {
		return ""
	}
	return segments[index]
}

// AgencyIDFromPath returns the agency id a path explicitly targets,
// stripped of any "DK-" prefix. It returns "" when the path carries the
// "agencyid" placeholder, leaving the token's own agency in effect.
func AgencyIDFromPath(path string) string {
	raw := AgencyPathValue(path)
	if raw == "" || strings.EqualFold(raw, "agencyid") {
		return ""
	}

	if len(raw) > 3 && strings.EqualFold(raw[:3], "dk-") {
		return raw[3:]
	}
	return raw
}

// RewritePath produces the backend path for an inbound path: the agency
// segment is replaced by the isil and any "patronid" placeholder segment by
// the resolved patron id. The query string is preserved untouched.
func RewritePath(path string, isil string, patronID string) string {
	path, query, hasQuery := strings.Cut(path, "?")

	segments := splitPath(path)

	if index := agencySegmentIndex(segments); index >= 0 {
		segments[index] = isil
	}

	if patronID != "" {
		for i, segment := range segments {
			if strings.EqualFold(segment, "patronid") {
				segments[i] = patronID
			}
		}
	}

	rewritten := strings.Join(segments, "/")
	if hasQuery {
		rewritten += "?" + query
	}
	return rewritten
}

// PatronIDRequired reports whether the path contains a patron placeholder
// segment that needs resolution.
func PatronIDRequired(path string) bool {
	path, _, _ = strings.Cut(path, "?")
	return strings.Contains(path, "/patronid/")
}

func splitPath(path string) []string {
	path, _, _ = strings.Cut(path, "?")
	return strings.Split(path, "/")
}

func agencySegmentIndex(segments []string) int {
	for i, segment := range segments {
		if segment != "external" {
			continue
		}

		index := i + 1
		if index < len(segments) && versionSegment.MatchString(segments[index]) {
			index++
		}
		if index < len(segments) {
			return index
		}
		return -1
	}
	return -1
}
