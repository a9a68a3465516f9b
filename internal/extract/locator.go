package extract

import "regexp"

// identifierPattern matches a Spanish company tax id (NIF/CIF): one uppercase
// letter followed by eight digits
var identifierPattern = regexp.MustCompile(`\b[A-Z]\d{8}\b`)

// FindIdentifier returns the leftmost tax identifier in text, or notFound
func FindIdentifier(text, notFound string) string {
	if id := identifierPattern.FindString(text); id != "" {
		return id
	}
	return notFound
}
