package httpx

import (
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/52poke/kura/internal/policy"
)

// IsEligible reports whether the request may be served by the cache layer.
// Everything but GET goes straight to the origin.
func IsEligible(r *http.Request) bool {
	return r.Method == http.MethodGet
}

// Classify sorts a request URL into a resource class. Rules are
// evaluated in order and the first match wins.
func Classify(p policy.Policy, u *url.URL) policy.ResourceClass {
	urlPath := u.Path
	if urlPath == "" {
		urlPath = "/"
	}
	ext := strings.ToLower(path.Ext(urlPath))

	switch {
	case isStatic(p, urlPath, ext):
		return policy.ClassStatic
	case isAPI(p, urlPath):
		return policy.ClassAPI
	case isImage(p, urlPath, ext):
		return policy.ClassImage
	case isFont(p, u.Hostname(), ext):
		return policy.ClassFont
	default:
		return policy.ClassDynamic
	}
}

func isStatic(p policy.Policy, urlPath, ext string) bool {
	if slices.Contains(p.SeedPaths, urlPath) {
		return true
	}
	return slices.Contains(p.ScriptMarkers, ext)
}

func isAPI(p policy.Policy, urlPath string) bool {
	for _, prefix := range p.APIPrefixes {
		if strings.HasPrefix(urlPath, prefix) {
			return true
		}
	}
	return false
}

func isImage(p policy.Policy, urlPath, ext string) bool {
	if slices.Contains(p.ImageExts, ext) {
		return true
	}
	for _, dir := range p.ImageDirs {
		if strings.Contains(urlPath, dir) {
			return true
		}
	}
	return false
}

func isFont(p policy.Policy, host, ext string) bool {
	if slices.Contains(p.FontHosts, strings.ToLower(host)) {
		return true
	}
	return slices.Contains(p.FontExts, ext)
}
