// Package jsdetect decides whether a page needs JavaScript to render its
// content. The heuristics deliberately favor escalation over precision: a
// single positive signal is enough.
package jsdetect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signal reasons, kept as an enumerable table so each heuristic can be
// tested on its own.
const (
	ReasonNoscriptWarning  = "noscript warning found"
	ReasonFrameworkRoot    = "JavaScript framework root element found"
	ReasonFrameworkScript  = "JavaScript framework script found"
	ReasonFrameworkMeta    = "JavaScript framework meta tag found"
	ReasonLazyImages       = "Lazy-loaded images found"
	ReasonWebComponents    = "Web components found"
	ReasonEmptyContent     = "Empty content container found"
	ReasonLoadingIndicator = "Loading indicator found"
	ReasonDynamicInit      = "Dynamic content initialization found"
)

var frameworkRootSelectors = []string{
	"#app",
	"#root",
	"[ng-app]",
	"[data-reactroot]",
	".vue-app",
	".ember-view",
	".ember-application",
}

var frameworkScriptKeywords = []string{
	"react", "vue", "angular", "ember", "webpack", "chunk",
}

var dynamicInitMarkers = []string{
	"window.", "document.", "addEventListener", "DOMContentLoaded",
}

// Classify inspects HTML and reports whether the page looks JS-dependent,
// along with the signals that fired.
func Classify(html string) (bool, []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable HTML gives the heuristics nothing to work with.
		return false, nil
	}

	var reasons []string

	doc.Find("noscript").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content := strings.ToLower(s.Text())
		if strings.Contains(content, "javascript") ||
			strings.Contains(content, "enable") ||
			strings.Contains(content, "script") {
			reasons = append(reasons, ReasonNoscriptWarning)
			return false
		}
		return true
	})

	for _, selector := range frameworkRootSelectors {
		if doc.Find(selector).Length() > 0 {
			reasons = append(reasons, ReasonFrameworkRoot)
			break
		}
	}

	doc.Find("script[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		src = strings.ToLower(src)
		for _, keyword := range frameworkScriptKeywords {
			if strings.Contains(src, keyword) {
				reasons = append(reasons, ReasonFrameworkScript)
				return false
			}
		}
		return true
	})

	if doc.Find("meta[name='crates-io/config/environment']").Length() > 0 {
		reasons = append(reasons, ReasonFrameworkMeta)
	}

	if doc.Find("img[loading='lazy'], img[data-src]").Length() > 0 {
		reasons = append(reasons, ReasonLazyImages)
	}

	if doc.Find("*[is], *[custom-element]").Length() > 0 {
		reasons = append(reasons, ReasonWebComponents)
	}

	doc.Find("main, #content, .content, article").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		inner, err := s.Html()
		if err == nil && strings.TrimSpace(inner) == "" {
			reasons = append(reasons, ReasonEmptyContent)
			return false
		}
		return true
	})

	if doc.Find("[class*='loading'], [id*='loading'], [class*='spinner']").Length() > 0 {
		reasons = append(reasons, ReasonLoadingIndicator)
	}

	for _, marker := range dynamicInitMarkers {
		if strings.Contains(html, marker) {
			reasons = append(reasons, ReasonDynamicInit)
			break
		}
	}

	return len(reasons) >= 1, reasons
}
