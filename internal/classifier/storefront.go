package classifier

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// storefrontTextMarkers are substrings that identify the storefront
// platform in a page when no structured marker is present.
var storefrontTextMarkers = []string{
	"powered by shopify",
	"cdn.shopify.com",
	"shop.js",
	"shopify",
}

// DetectStorefront reports whether the page carries storefront platform
// markers. The result is informative only; it never changes a label.
func DetectStorefront(body string) bool {
	if body == "" {
		return false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err == nil {
		found := false
		doc.Find(`script[src*="cdn.shopify.com"], link[href*="cdn.shopify.com"]`).EachWithBreak(
			func(_ int, _ *goquery.Selection) bool {
				found = true
				return false
			})
		if found {
			return true
		}

		doc.Find(`meta[name="generator"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			content, _ := s.Attr("content")
			found = strings.Contains(strings.ToLower(content), "shopify")
			return !found
		})
		if found {
			return true
		}
	}

	lower := strings.ToLower(body)
	for _, marker := range storefrontTextMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
