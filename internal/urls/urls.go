// Package urls turns application-relative paths into the links rendered in pages.
package urls

import "strings"

// Displayer converts a relative URL into the form shown to clients.
type Displayer interface {
	Display(url string) string
}

// DisplayFunc adapts a function to the Displayer interface.
type DisplayFunc func(url string) string

// Display calls f(url).
func (f DisplayFunc) Display(url string) string {
	return f(url)
}

// Identity returns a Displayer that leaves URLs unchanged.
func Identity() Displayer {
	return DisplayFunc(func(url string) string { return url })
}

// BasePath prefixes relative URLs with a base path or absolute base URL,
// e.g. "/rss" or "https://example.org/rss".
type BasePath struct {
	base string
}

// NewBasePath creates a BasePath displayer. An empty base behaves like Identity.
func NewBasePath(base string) *BasePath {
	return &BasePath{base: strings.TrimRight(strings.TrimSpace(base), "/")}
}

// Display prefixes url with the base path. Absolute URLs are returned unchanged.
func (b *BasePath) Display(url string) string {
	if b.base == "" || strings.Contains(url, "://") {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return b.base + url
}
