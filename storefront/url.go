package storefront

import "strings"

// URLBuilder qualifies a store relative path
type URLBuilder interface {
	BuildURL(store Store, language, path string) string
}

// PathURLBuilder prefixes /{store}/{lang} segments. The store segment is
// omitted for the default store and for stores bound to their own host,
// the language segment for the store default language.
type PathURLBuilder struct {
	DefaultStoreID string
}

// BuildURL implements URLBuilder
func (b PathURLBuilder) BuildURL(store Store, language, path string) string {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var prefix strings.Builder
	if store.ID != "" && store.Host == "" && !strings.EqualFold(store.ID, b.DefaultStoreID) {
		prefix.WriteString("/")
		prefix.WriteString(store.ID)
	}
	if language != "" && !strings.EqualFold(language, store.DefaultLanguage) {
		prefix.WriteString("/")
		prefix.WriteString(language)
	}

	if prefix.Len() == 0 {
		return path
	}
	if path == "/" {
		return prefix.String()
	}
	return prefix.String() + path
}
