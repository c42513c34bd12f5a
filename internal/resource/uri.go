package resource

import (
	"net/url"
	"strings"

	"dockup-scheduler/internal/apperrors"
)

// ExtractID returns the identifier of a resource URI of the form
// .../<kind>/<id>/, i.e. its last non-empty path segment. URIs with fewer
// than two segments are rejected with apperrors.ErrIdentifier.
func ExtractID(uri string) (string, error) {
	path := uri
	if strings.Contains(uri, "://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", apperrors.Identifier(uri)
		}
		path = u.Path
	}

	var segments []string
	for s := range strings.SplitSeq(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return "", apperrors.Identifier(uri)
	}
	return segments[len(segments)-1], nil
}

// URI builds the canonical API URI for a resource.
func URI(kind Kind, id string) string {
	return "/api/v1/" + string(kind) + "/" + id + "/"
}
