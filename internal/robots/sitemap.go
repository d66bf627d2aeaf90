package robots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

type sitemapEntry struct {
	urls    map[string]struct{}
	fetched time.Time
}

// SitemapURLs returns the page URLs listed by a domain's sitemaps. Sitemap
// locations come from robots.txt Sitemap: lines, falling back to the
// conventional /sitemap.xml. Results are cached per domain with the same TTL
// as robots policies.
func (m *Manager) SitemapURLs(ctx context.Context, domain string) (map[string]struct{}, error) {
	domain = strings.ToLower(domain)

	m.mu.Lock()
	if entry, ok := m.sitemaps[domain]; ok && time.Since(entry.fetched) <= m.ttl {
		urls := entry.urls
		m.mu.Unlock()
		return urls, nil
	}
	m.mu.Unlock()

	roots := m.sitemapsFromRobots(ctx, domain)
	if len(roots) == 0 {
		roots = []string{fmt.Sprintf("http://%s/sitemap.xml", domain)}
	}

	all := make(map[string]struct{})
	visited := make(map[string]struct{})
	for _, root := range roots {
		m.walkSitemap(ctx, root, all, visited)
	}

	m.mu.Lock()
	m.sitemaps[domain] = sitemapEntry{urls: all, fetched: time.Now()}
	m.mu.Unlock()
	return all, nil
}

// sitemapsFromRobots scans robots.txt for Sitemap: lines.
func (m *Manager) sitemapsFromRobots(ctx context.Context, domain string) []string {
	robotsURL := fmt.Sprintf("http://%s/robots.txt", domain)
	content, err := m.fetchText(ctx, robotsURL)
	if err != nil {
		m.logger.Debug("no robots.txt for sitemap discovery",
			zap.String("domain", domain), zap.Error(err))
		return nil
	}

	var sitemaps []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 8 || !strings.EqualFold(line[:8], "sitemap:") {
			continue
		}
		if loc := strings.TrimSpace(line[8:]); loc != "" {
			sitemaps = append(sitemaps, loc)
		}
	}
	return sitemaps
}

// walkSitemap traverses a sitemap and any nested sitemap indexes with an
// explicit stack. The visited set breaks reference cycles between indexes.
func (m *Manager) walkSitemap(ctx context.Context, root string, all, visited map[string]struct{}) {
	stack := []string{root}
	visited[root] = struct{}{}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		m.logger.Debug("processing sitemap", zap.String("url", current))
		content, err := m.fetchText(ctx, current)
		if err != nil {
			m.logger.Warn("sitemap fetch failed", zap.String("url", current), zap.Error(err))
			continue
		}

		subSitemaps, pageURLs := scanSitemapLocs(content)
		for _, u := range pageURLs {
			all[u] = struct{}{}
		}
		for _, sub := range subSitemaps {
			if _, seen := visited[sub]; !seen {
				visited[sub] = struct{}{}
				stack = append(stack, sub)
			}
		}
	}
}

// scanSitemapLocs pulls every <loc> value out of a sitemap document and
// classifies it by the nearest preceding open tag: <sitemap means a nested
// index, anything else (including <url) is a page URL.
func scanSitemapLocs(content string) (sitemapURLs, pageURLs []string) {
	pos := 0
	for {
		start := strings.Index(content[pos:], "<loc>")
		if start < 0 {
			break
		}
		pos += start + len("<loc>")
		end := strings.Index(content[pos:], "</loc>")
		if end < 0 {
			break
		}
		loc := strings.TrimSpace(content[pos : pos+end])

		tag := nearestOpenTag(content[:pos])
		if tag == "sitemap" {
			sitemapURLs = append(sitemapURLs, loc)
		} else {
			pageURLs = append(pageURLs, loc)
		}
		pos += end + len("</loc>")
	}
	return sitemapURLs, pageURLs
}

func nearestOpenTag(preceding string) string {
	// Skip the <loc> tag itself.
	preceding = preceding[:len(preceding)-len("<loc>")]
	idx := strings.LastIndex(preceding, "<")
	if idx < 0 {
		return ""
	}
	tag := preceding[idx:]
	switch {
	case strings.HasPrefix(tag, "<sitemap"):
		return "sitemap"
	case strings.HasPrefix(tag, "<url"):
		return "url"
	default:
		return ""
	}
}
