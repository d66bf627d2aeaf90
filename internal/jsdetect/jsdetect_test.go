package jsdetect

import (
	"slices"
	"testing"
)

func TestClassifySignals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		html       string
		wantReason string
	}{
		{
			name:       "noscript warning",
			html:       `<html><body><noscript>Please enable JavaScript to view this site.</noscript></body></html>`,
			wantReason: ReasonNoscriptWarning,
		},
		{
			name:       "react root",
			html:       `<html><body><div id="root"></div></body></html>`,
			wantReason: ReasonFrameworkRoot,
		},
		{
			name:       "angular root attribute",
			html:       `<html><body><div ng-app="shop"></div></body></html>`,
			wantReason: ReasonFrameworkRoot,
		},
		{
			name:       "bundle script",
			html:       `<html><head><script src="/static/js/main.chunk.js"></script></head><body><p>x</p></body></html>`,
			wantReason: ReasonFrameworkScript,
		},
		{
			name:       "ember config meta",
			html:       `<html><head><meta name="crates-io/config/environment" content="%7B%7D"></head><body><p>x</p></body></html>`,
			wantReason: ReasonFrameworkMeta,
		},
		{
			name:       "lazy images",
			html:       `<html><body><img data-src="/img/hero.png"><p>hello</p></body></html>`,
			wantReason: ReasonLazyImages,
		},
		{
			name:       "empty main container",
			html:       `<html><body><main>   </main></body></html>`,
			wantReason: ReasonEmptyContent,
		},
		{
			name:       "spinner",
			html:       `<html><body><div class="page-spinner"></div><p>x</p></body></html>`,
			wantReason: ReasonLoadingIndicator,
		},
		{
			name:       "inline dynamic init",
			html:       `<html><body><p>x</p><script>document.addEventListener("DOMContentLoaded", init)</script></body></html>`,
			wantReason: ReasonDynamicInit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dependent, reasons := Classify(tt.html)
			if !dependent {
				t.Fatalf("expected JS-dependent, reasons: %v", reasons)
			}
			if !slices.Contains(reasons, tt.wantReason) {
				t.Errorf("expected reason %q, got %v", tt.wantReason, reasons)
			}
		})
	}
}

func TestClassifySPAShell(t *testing.T) {
	t.Parallel()

	html := `<html><head><script src="/static/js/main.chunk.js"></script></head>
<body><div id="root"></div></body></html>`

	dependent, reasons := Classify(html)
	if !dependent {
		t.Fatal("SPA shell should classify as JS-dependent")
	}
	if !slices.Contains(reasons, ReasonFrameworkScript) {
		t.Errorf("expected a framework-script reason, got %v", reasons)
	}
	if !slices.Contains(reasons, ReasonFrameworkRoot) {
		t.Errorf("expected a framework-root reason, got %v", reasons)
	}
}

func TestClassifyStaticArticle(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<article>
  <h1>Plain server-rendered content</h1>
  <p>This page carries its full text in the initial response.</p>
</article>
</body></html>`

	dependent, reasons := Classify(html)
	if dependent {
		t.Errorf("populated article should not be JS-dependent, reasons: %v", reasons)
	}
}
