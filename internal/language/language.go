package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
)

type entry struct {
	code2   string
	code3   string
	alt3    string
	display string
}

var languages = []entry{
	{"en", "eng", "", "English"},
	{"es", "spa", "", "Spanish"},
	{"fr", "fra", "fre", "French"},
	{"de", "deu", "ger", "German"},
	{"it", "ita", "", "Italian"},
	{"pt", "por", "", "Portuguese"},
	{"ja", "jpn", "", "Japanese"},
	{"ko", "kor", "", "Korean"},
	{"zh", "zho", "chi", "Chinese"},
	{"ru", "rus", "", "Russian"},
	{"ar", "ara", "", "Arabic"},
	{"hi", "hin", "", "Hindi"},
	{"nl", "nld", "dut", "Dutch"},
	{"pl", "pol", "", "Polish"},
	{"sv", "swe", "", "Swedish"},
	{"da", "dan", "", "Danish"},
	{"no", "nor", "", "Norwegian"},
	{"fi", "fin", "", "Finnish"},
	{"tr", "tur", "", "Turkish"},
	{"id", "ind", "", "Indonesian"},
	{"vi", "vie", "", "Vietnamese"},
	{"uk", "ukr", "", "Ukrainian"},
}

var index = func() map[string]*entry {
	m := make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		m[e.code2] = e
		m[e.code3] = e
		if e.alt3 != "" {
			m[e.alt3] = e
		}
		m[strings.ToLower(e.display)] = e
	}
	return m
}()

// Code returns the ISO 639-1 code for a provider language label. Regional
// qualifiers are dropped: "en-US", "English (UK)" and "eng" all yield "en".
// Unrecognized labels yield "".
func Code(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if before, _, ok := strings.Cut(label, "("); ok {
		label = strings.TrimSpace(before)
	}
	if label == "" {
		return ""
	}
	if e, ok := index[label]; ok {
		return e.code2
	}
	if tag, err := xlanguage.Parse(label); err == nil {
		if base, conf := tag.Base(); conf != xlanguage.No && base.String() != "und" {
			return base.String()
		}
	}
	// "Spanish Mexico", "english_us"
	first := strings.FieldsFunc(label, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == ','
	})
	if len(first) > 0 {
		if e, ok := index[first[0]]; ok {
			return e.code2
		}
	}
	return ""
}

// DisplayName returns a human-readable name for a code or label. Unknown
// input is returned trimmed; empty input yields "Unknown".
func DisplayName(label string) string {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return "Unknown"
	}
	if e, ok := index[Code(trimmed)]; ok {
		return e.display
	}
	return trimmed
}

// Matches reports whether label names the same language as filter. Both
// sides are normalized; an empty filter matches everything.
func Matches(label, filter string) bool {
	if strings.TrimSpace(filter) == "" {
		return true
	}
	want := Code(filter)
	if want == "" {
		return strings.EqualFold(strings.TrimSpace(label), strings.TrimSpace(filter))
	}
	return Code(label) == want
}
