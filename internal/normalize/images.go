package normalize

import "strings"

// FixImageURL repairs protocol-relative and host-relative image URLs against
// host. Applying it twice yields the same result.
func FixImageURL(raw, host string) string {
	u := strings.TrimSpace(raw)
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "/"):
		return strings.TrimRight(host, "/") + u
	default:
		return u
	}
}

func isDataURI(u string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(u)), "data:")
}

// imageList flattens raw into repaired, distinct image URLs in input order.
func imageList(raw any, host string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, s := range flattenStrings(raw) {
		if isDataURI(s) {
			continue
		}
		fixed := FixImageURL(s, host)
		if fixed == "" {
			continue
		}
		if _, dup := seen[fixed]; dup {
			continue
		}
		seen[fixed] = struct{}{}
		out = append(out, fixed)
	}
	return out
}
