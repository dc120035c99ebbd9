// README: Country canonicalization applied wherever a backend country string is read.
package trips

import "strings"

// countryAliases maps lower-cased spellings to a canonical country name.
// Canonical names are listed under their own lower-case form so that
// NormalizeCountry is idempotent.
var countryAliases = map[string]string{
	"united states of america": "United States of America",
	"united states":            "United States of America",
	"usa":                      "United States of America",
	"u.s.a.":                   "United States of America",
	"u.s.a":                    "United States of America",
	"us":                       "United States of America",
	"u.s.":                     "United States of America",
	"u.s":                      "United States of America",
	"america":                  "United States of America",

	"united kingdom":                                       "United Kingdom",
	"uk":                                                   "United Kingdom",
	"u.k.":                                                 "United Kingdom",
	"gb":                                                   "United Kingdom",
	"great britain":                                        "United Kingdom",
	"britain":                                              "United Kingdom",
	"england":                                              "United Kingdom",
	"united kingdom of great britain and northern ireland": "United Kingdom",

	"united arab emirates": "United Arab Emirates",
	"uae":                  "United Arab Emirates",
	"u.a.e.":               "United Arab Emirates",

	"india":             "India",
	"bharat":            "India",
	"republic of india": "India",

	"germany":     "Germany",
	"deutschland": "Germany",
	"de":          "Germany",

	"france": "France",
	"fr":     "France",

	"spain":  "Spain",
	"españa": "Spain",

	"netherlands":     "Netherlands",
	"the netherlands": "Netherlands",
	"holland":         "Netherlands",

	"canada": "Canada",
	"ca":     "Canada",

	"australia": "Australia",
	"au":        "Australia",

	"south korea":       "South Korea",
	"korea":             "South Korea",
	"republic of korea": "South Korea",

	"china":                      "China",
	"prc":                        "China",
	"people's republic of china": "China",

	"japan": "Japan",
	"jp":    "Japan",

	"singapore": "Singapore",
	"sg":        "Singapore",

	"russia":             "Russia",
	"russian federation": "Russia",

	"saudi arabia": "Saudi Arabia",
	"ksa":          "Saudi Arabia",

	"new zealand": "New Zealand",
	"nz":          "New Zealand",

	"south africa": "South Africa",
	"rsa":          "South Africa",
}

// NormalizeCountry canonicalizes a country name. Unknown names come back
// trimmed with inner whitespace collapsed; the empty string stays empty.
func NormalizeCountry(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	if canonical, ok := countryAliases[strings.ToLower(s)]; ok {
		return canonical
	}
	return s
}

// SameCountry compares two country strings after canonicalization.
func SameCountry(a, b string) bool {
	a, b = NormalizeCountry(a), NormalizeCountry(b)
	return a != "" && strings.EqualFold(a, b)
}
