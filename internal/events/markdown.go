package events

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithUnsafe()),
	)
	// Raw HTML is let through goldmark and cleaned here.
	sanitizer = bluemonday.UGCPolicy()

	nonSlug = regexp.MustCompile(`[^a-z0-9]+`)
)

// RenderDescription converts a markdown description to sanitized HTML.
func RenderDescription(src string) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return sanitizer.Sanitize(buf.String()), nil
}

// Slugify turns a title into a URL-safe slug, dropping diacritics.
func Slugify(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, title)
	if err != nil {
		plain = title
	}
	slug := nonSlug.ReplaceAllString(strings.ToLower(plain), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}
	if slug == "" {
		slug = "evenement"
	}
	return slug
}
