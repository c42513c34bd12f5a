package backup

import "github.com/distribution/reference"

// sameImage reports whether image runs the configured image. Repositories
// are compared in normalized form. A configured image without a tag matches
// any tag; an image without a tag is treated as "latest".
func sameImage(image, configured string) bool {
	if image == "" || configured == "" {
		return false
	}
	got, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return image == configured
	}
	want, err := reference.ParseNormalizedNamed(configured)
	if err != nil {
		return image == configured
	}
	if got.Name() != want.Name() {
		return false
	}

	wantTagged, ok := want.(reference.Tagged)
	if !ok {
		return true
	}
	gotTag := "latest"
	if tagged, ok := got.(reference.Tagged); ok {
		gotTag = tagged.Tag()
	}
	return gotTag == wantTagged.Tag()
}
