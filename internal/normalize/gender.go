package normalize

import "strings"

// Gender vocabulary.
const (
	GenderMan    = "MAN"
	GenderWoman  = "WOMAN"
	GenderUnisex = "UNISEX"
)

// Women keywords are checked first: "WOMEN" contains "MEN".
var (
	womanKeywords = []string{"WOMEN", "WOMAN", "FEMALE", "LADY", "LADIES", "GIRL"}
	manKeywords   = []string{"MEN", "MAN", "MALE", "GUY", "BOY"}
)

// Gender maps free text onto the gender vocabulary. Unrecognized input is
// returned uppercased; blank input yields ok=false.
func Gender(raw string) (string, bool) {
	g := strings.ToUpper(strings.TrimSpace(raw))
	if g == "" {
		return "", false
	}
	switch g {
	case GenderMan, GenderWoman, GenderUnisex:
		return g, true
	}
	if strings.Contains(g, GenderUnisex) {
		return GenderUnisex, true
	}
	for _, kw := range womanKeywords {
		if strings.Contains(g, kw) {
			return GenderWoman, true
		}
	}
	for _, kw := range manKeywords {
		if strings.Contains(g, kw) {
			return GenderMan, true
		}
	}
	return g, true
}
