package catalog

import (
	"net/url"
	"strings"
)

const embedBase = "https://www.youtube.com/embed/"

// EmbedURL turns a lecture's video reference into an embeddable player URL.
// It accepts youtu.be short links, watch URLs with a v parameter, or a bare id.
func EmbedURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
		if u.Hostname() == "youtu.be" {
			return embedBase + strings.TrimPrefix(u.Path, "/")
		}
		if v := u.Query().Get("v"); v != "" {
			return embedBase + v
		}
		if strings.HasPrefix(u.Path, "/embed/") {
			return ref
		}
	}
	return embedBase + ref
}
