package routes

import (
	"path"
	"regexp"
	"strings"
)

// staticAsset matches file names the gate never inspects. ".json" is not in
// the list, so data files are still gated.
var staticAsset = regexp.MustCompile(
	`\.(?:html?|css|js|jpe?g|webp|png|gif|svg|ttf|woff2?|ico|csv|docx?|xlsx?|zip|webmanifest)$`)

// CanonicalPath returns requestPath with dot segments and repeated slashes
// collapsed. A trailing slash is kept so "/news/" stays distinct from "/news".
func CanonicalPath(requestPath string) string {
	if requestPath == "" {
		return "/"
	}
	clean := path.Clean("/" + requestPath)
	if clean != "/" && strings.HasSuffix(requestPath, "/") {
		clean += "/"
	}
	return clean
}

// ShouldGate reports whether a request path goes through the gate at all.
// Framework internals under /_next and static assets pass straight through;
// anything under /api or /trpc is always gated regardless of extension.
func ShouldGate(requestPath string) bool {
	if hasSegmentPrefix(requestPath, "/api") || hasSegmentPrefix(requestPath, "/trpc") {
		return true
	}
	if hasSegmentPrefix(requestPath, "/_next") {
		return false
	}
	return !staticAsset.MatchString(path.Base(requestPath))
}

// IsBypassPath checks if a path belongs to the process's own infrastructure
// endpoints (health, metrics) and should skip the gate.
// It performs secure path matching by:
// 1. Rejecting paths with encoded path separators to prevent double-encoding attacks
// 2. Normalizing the path to prevent traversal attacks (e.g., /healthz/../admin)
// 3. Using segment-aware matching so /healthz matches /healthz/live but NOT /healthzx
func IsBypassPath(requestPath string, bypassPaths []string) bool {
	lowerPath := strings.ToLower(requestPath)
	if strings.Contains(lowerPath, "%2f") || strings.Contains(lowerPath, "%2e") {
		return false
	}

	cleanPath := path.Clean("/" + requestPath)

	for _, bp := range bypassPaths {
		cleanBypass := path.Clean("/" + bp)
		// "/" would make the whole site bypass the gate
		if cleanBypass == "/" {
			continue
		}
		if cleanPath == cleanBypass || strings.HasPrefix(cleanPath, cleanBypass+"/") {
			return true
		}
	}
	return false
}

func hasSegmentPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
