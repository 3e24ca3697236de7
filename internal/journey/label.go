package journey

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	labelFallback   = "Page"
	labelHome       = "Home"
	labelAllCourses = "All Courses"
	labelAllLessons = "All Lessons"
	labelSignIn     = "Sign In"
)

// routeLabels are checked in order against the URL path.
var routeLabels = []struct {
	fragment string
	label    string
}{
	{"all-courses", labelAllCourses},
	{"all-lessons", labelAllLessons},
	{"sign-in", labelSignIn},
	{"masterclass", "Masterclass"},
	{"pricing", "Pricing"},
}

// PageLabel derives a readable title from an absolute page URL. Anything that
// does not parse as an absolute URL becomes "Page".
func PageLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return labelFallback
	}

	if frag := u.Fragment; frag != "" && !strings.Contains(frag, "error") && !strings.Contains(frag, "access_token") {
		clean := titleCase(strings.ReplaceAll(frag, "-", " "))
		if utf8.RuneCountInString(clean) > 2 {
			return clean
		}
	}

	path := u.Path
	if path == "" && u.Opaque != "" {
		path = u.Opaque
	}
	if path == "" || path == "/" {
		return labelHome
	}
	for _, r := range routeLabels {
		if strings.Contains(path, r.fragment) {
			return r.label
		}
	}

	var last string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			last = part
		}
	}
	if last == "" {
		return labelFallback
	}
	return titleCase(strings.ReplaceAll(last, "-", " "))
}

// EventLabel names a tracker event, e.g. "lesson_completed" -> "Lesson Completed".
func EventLabel(name string) string {
	return titleCase(strings.ReplaceAll(name, "_", " "))
}

// isGeneric reports navigational pages that say nothing about intent.
func isGeneric(label string) bool {
	switch label {
	case labelHome, labelAllCourses, labelAllLessons, labelSignIn:
		return true
	}
	lower := strings.ToLower(label)
	return strings.Contains(lower, "all-courses") || strings.Contains(lower, "all-lessons")
}

// titleCase upper-cases every letter that starts a word, where word
// characters are letters, combining marks, digits and underscore.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevWord := false
	for _, r := range s {
		word := isWordRune(r)
		if word && !prevWord {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
		prevWord = word
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r)
}
