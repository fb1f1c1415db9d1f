package pipeline

import "strings"

// NormalizeURL trims a website value and prefixes bare domains with https
// so the links are clickable straight from the spreadsheet.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "https://" + u
}

// FormatPhone strips whitespace and adds the Norwegian country prefix to
// bare eight digit numbers. Values that do not look like a Norwegian
// number come back with whitespace removed but otherwise untouched.
func FormatPhone(p string) string {
	cleaned := strings.Join(strings.Fields(p), "")
	switch {
	case cleaned == "":
		return ""
	case strings.HasPrefix(cleaned, "47") && len(cleaned) == 10:
		return "+" + cleaned
	case len(cleaned) == 8 && isDigits(cleaned):
		return "+47" + cleaned
	}
	return cleaned
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ProffSearchURL builds a proff.no search link for manual follow-up on an
// organization number.
func ProffSearchURL(orgNumber string) string {
	return "https://www.proff.no/bransjesøk?q=" + orgNumber
}
