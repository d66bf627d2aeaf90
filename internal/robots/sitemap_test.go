package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestScanSitemapLocs(t *testing.T) {
	t.Parallel()

	content := `<?xml version="1.0"?>
<sitemapindex>
  <sitemap><loc>http://example.com/sub.xml</loc></sitemap>
</sitemapindex>
<urlset>
  <url><loc>http://example.com/page1</loc></url>
  <url><loc> http://example.com/page2 </loc></url>
</urlset>`

	sitemaps, pages := scanSitemapLocs(content)
	if len(sitemaps) != 1 || sitemaps[0] != "http://example.com/sub.xml" {
		t.Errorf("expected one sub-sitemap, got %v", sitemaps)
	}
	if len(pages) != 2 || pages[0] != "http://example.com/page1" || pages[1] != "http://example.com/page2" {
		t.Errorf("expected two trimmed page URLs, got %v", pages)
	}
}

func TestScanSitemapLocsAmbiguousDefaultsToPage(t *testing.T) {
	t.Parallel()

	_, pages := scanSitemapLocs("<loc>http://example.com/orphan</loc>")
	if len(pages) != 1 || pages[0] != "http://example.com/orphan" {
		t.Errorf("ambiguous loc should classify as page URL, got %v", pages)
	}
}

func TestSitemapCycleTraversal(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintf(w, "User-agent: *\nSitemap: %s/sitemap-a.xml\n", srv.URL)
		case "/sitemap-a.xml":
			fmt.Fprintf(w, `<sitemapindex>
  <sitemap><loc>%s/sitemap-b.xml</loc></sitemap>
  <url><loc>%s/a1</loc></url>
  <url><loc>%s/a2</loc></url>
</sitemapindex>`, srv.URL, srv.URL, srv.URL)
		case "/sitemap-b.xml":
			fmt.Fprintf(w, `<sitemapindex>
  <sitemap><loc>%s/sitemap-a.xml</loc></sitemap>
  <url><loc>%s/b1</loc></url>
</sitemapindex>`, srv.URL, srv.URL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := newTestManager(t, srv)

	urls, err := m.SitemapURLs(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("SitemapURLs: %v", err)
	}

	want := []string{srv.URL + "/a1", srv.URL + "/a2", srv.URL + "/b1"}
	if len(urls) != len(want) {
		t.Fatalf("expected %d page URLs from the cyclic index pair, got %d: %v", len(want), len(urls), urls)
	}
	for _, u := range want {
		if _, ok := urls[u]; !ok {
			t.Errorf("missing page URL %s", u)
		}
	}
}

func TestSitemapFallsBackToConventionalPath(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<urlset><url><loc>%s/only</loc></url></urlset>`, srv.URL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := newTestManager(t, srv)

	urls, err := m.SitemapURLs(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("SitemapURLs: %v", err)
	}
	if _, ok := urls[srv.URL+"/only"]; !ok || len(urls) != 1 {
		t.Errorf("expected fallback sitemap.xml to yield one URL, got %v", urls)
	}
}
