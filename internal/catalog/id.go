package catalog

// ProductID derives the deterministic row id from the conflict key.
func ProductID(h Hasher, source, productURL string) string {
	sum, err := h.Hash([]byte(source + productURL))
	if err != nil {
		return ""
	}
	return sum
}
