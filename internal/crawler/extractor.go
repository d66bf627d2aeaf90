package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/cryptocrawl/internal/frontier"
	"github.com/user/cryptocrawl/pkg/utils"
)

// ExtractLinks parses HTML content and returns the anchor targets
// resolved against base, with fragments stripped. Only http and https
// links are kept.
func ExtractLinks(base *url.URL, htmlContent string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	var links []string
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		abs, err := utils.ToAbsoluteURL(base, href)
		if err != nil {
			return
		}
		parsed, err := url.Parse(abs)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return
		}
		links = append(links, frontier.Normalize(abs))
	})
	return links, nil
}

// filterScope keeps links on the crawl's root domain, including
// subdomains when followSubdomains is set.
func filterScope(links []string, root string, followSubdomains bool) []string {
	var kept []string
	for _, link := range links {
		parsed, err := url.Parse(link)
		if err != nil {
			continue
		}
		host := parsed.Hostname()
		if host == root || (followSubdomains && utils.SameOrSubdomain(host, root)) {
			kept = append(kept, link)
		}
	}
	return kept
}
