package embedding

import (
	"net/url"
	"path"
	"strings"
)

// Skip reasons reported by Sanitize.
const (
	ReasonEmpty       = "empty"
	ReasonDataURI     = "data_uri"
	ReasonVideo       = "video"
	ReasonNotImage    = "not_image"
	ReasonUntrusted   = "untrusted_host"
	ReasonPlaceholder = "placeholder"
	ReasonMalformed   = "malformed"
)

var (
	videoMarkers = []string{".m3u8", ".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v", "/video"}
	nonImageExts = map[string]bool{
		".html": true, ".htm": true, ".json": true, ".xml": true,
		".txt": true, ".css": true, ".js": true,
	}
)

// ValidationConfig describes the retailer-specific image host heuristics.
type ValidationConfig struct {
	// RetailerMarker identifies URLs that belong to the retailer, e.g. "bershka".
	RetailerMarker string
	// StaticPrefix is the only accepted prefix for retailer image URLs.
	StaticPrefix string
	// AssetToken marks a real product asset path, e.g. "assets/public".
	AssetToken string
	// MinLength is the shortest retailer URL accepted without AssetToken.
	MinLength int
}

// DefaultValidation matches the Bershka static asset host.
func DefaultValidation() ValidationConfig {
	return ValidationConfig{
		RetailerMarker: "bershka",
		StaticPrefix:   "https://static.bershka.net/",
		AssetToken:     "assets/public",
		MinLength:      80,
	}
}

// Sanitize repairs raw into a fetchable image URL. ok is false with a reason
// when the URL should not be embedded at all.
func Sanitize(raw string, cfg ValidationConfig) (string, string, bool) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", ReasonEmpty, false
	}
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "data:") {
		return "", ReasonDataURI, false
	}
	for _, marker := range videoMarkers {
		if strings.Contains(lower, marker) {
			return "", ReasonVideo, false
		}
	}
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", ReasonMalformed, false
	}
	if nonImageExts[strings.ToLower(path.Ext(parsed.Path))] {
		return "", ReasonNotImage, false
	}
	parsed.Path = collapseSlashes(parsed.Path)
	parsed.RawPath = ""
	u = parsed.String()

	if cfg.RetailerMarker != "" && strings.Contains(strings.ToLower(u), cfg.RetailerMarker) {
		if cfg.StaticPrefix != "" && !strings.HasPrefix(u, cfg.StaticPrefix) {
			return "", ReasonUntrusted, false
		}
		if cfg.AssetToken != "" && !strings.Contains(u, cfg.AssetToken) && len(u) < cfg.MinLength {
			return "", ReasonPlaceholder, false
		}
	}
	return u, "", true
}

func collapseSlashes(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}
