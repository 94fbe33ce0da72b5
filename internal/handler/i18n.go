package handler

import (
	"net/http"

	"golang.org/x/text/language"
)

// pageLanguages are the languages pages are served in. The first one is
// used when Accept-Language matches none.
var pageLanguages = []language.Tag{language.English, language.Russian}

var languageMatcher = language.NewMatcher(pageLanguages)

// Message keys.
const msgProductNotFound = "catalogue.errors.product.not_found"

var messages = map[string]map[string]string{
	"en": {msgProductNotFound: "Product not found"},
	"ru": {msgProductNotFound: "Товар не найден"},
}

// requestLanguage returns the base language ("en", "ru") best matching the
// Accept-Language header of r.
func requestLanguage(r *http.Request) string {
	tag, _ := language.MatchStrings(languageMatcher, r.Header.Get("Accept-Language"))
	base, _ := tag.Base()
	if _, ok := messages[base.String()]; !ok {
		return "en"
	}
	return base.String()
}

// message returns the text for key in lang, falling back to English and
// then to the key itself.
func message(lang, key string) string {
	if m, ok := messages[lang][key]; ok {
		return m
	}
	if m, ok := messages["en"][key]; ok {
		return m
	}
	return key
}
