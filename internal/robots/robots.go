package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Policy holds the parsed rules of one robots.txt document.
type Policy struct {
	// groups maps a lowercased user-agent to its rules in file order.
	groups map[string][]rule
	// defaults are rules that appeared before any User-agent line.
	defaults []rule
}

type rule struct {
	pattern string
	allow   bool
}

// ParsePolicy parses robots.txt content into per-agent rule groups. Sitemap
// and other directives are ignored here; sitemaps are handled separately.
func ParsePolicy(content string) *Policy {
	p := &Policy{groups: make(map[string][]rule)}

	var currentAgents []string
	inRules := false

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		directive := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])

		switch directive {
		case "user-agent":
			// A User-agent line after rules starts a new group.
			if inRules {
				currentAgents = nil
				inRules = false
			}
			currentAgents = append(currentAgents, strings.ToLower(value))
		case "allow":
			inRules = true
			p.addRule(currentAgents, rule{pattern: value, allow: true})
		case "disallow":
			inRules = true
			if value == "" {
				// Blank Disallow means allow-all for this group.
				continue
			}
			p.addRule(currentAgents, rule{pattern: value, allow: false})
		}
	}
	return p
}

func (p *Policy) addRule(agents []string, r rule) {
	if len(agents) == 0 {
		p.defaults = append(p.defaults, r)
		return
	}
	for _, agent := range agents {
		p.groups[agent] = append(p.groups[agent], r)
	}
}

// CanFetch evaluates whether the agent may fetch the URL. Groups are tried in
// priority order: exact agent, agents that are a prefix of the request agent,
// the wildcard group, then ungrouped defaults. Within a group the last
// matching rule in file order wins; no match anywhere defaults to allow.
func (p *Policy) CanFetch(agent string, target *url.URL) bool {
	path := target.Path
	if path == "" {
		path = "/"
	}
	agent = strings.ToLower(agent)

	if rules, ok := p.groups[agent]; ok {
		if verdict, matched := checkRules(rules, path); matched {
			return verdict
		}
	}
	for groupAgent, rules := range p.groups {
		if groupAgent != "*" && strings.HasPrefix(agent, groupAgent) {
			if verdict, matched := checkRules(rules, path); matched {
				return verdict
			}
		}
	}
	if rules, ok := p.groups["*"]; ok {
		if verdict, matched := checkRules(rules, path); matched {
			return verdict
		}
	}
	if verdict, matched := checkRules(p.defaults, path); matched {
		return verdict
	}
	return true
}

// checkRules scans a group in file order; the last matching rule wins.
func checkRules(rules []rule, path string) (verdict, matched bool) {
	for _, r := range rules {
		if pathMatches(r.pattern, path) {
			matched = true
			verdict = r.allow
		}
	}
	return verdict, matched
}

func pathMatches(pattern, path string) bool {
	if pattern == "/" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(path, pattern[:len(pattern)-1])
	}
	return path == pattern || strings.HasPrefix(path, pattern+"/")
}

const (
	defaultPolicyTTL   = time.Hour
	verdictTTL         = 60 * time.Second
	verdictCacheLimit  = 1000
	robotsFetchTimeout = 10 * time.Second
)

type policyEntry struct {
	policy  *Policy
	fetched time.Time
}

type verdictEntry struct {
	url     string
	allowed bool
	cached  time.Time
}

// Manager fetches, parses, and caches robots.txt policies per domain. One
// Manager is shared across crawls for the lifetime of the process.
type Manager struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	logger    *zap.Logger

	mu sync.Mutex
	// policies caches parsed robots.txt per domain with a TTL.
	policies map[string]policyEntry
	// negative holds domains with no reachable robots.txt, for the process
	// lifetime.
	negative map[string]struct{}
	// verdicts is a bounded per-URL allow/deny cache for hot paths.
	verdicts []verdictEntry

	sitemaps map[string]sitemapEntry
}

// NewManager builds a robots manager around the given HTTP client.
func NewManager(client *http.Client, userAgent string, logger *zap.Logger) *Manager {
	if client == nil {
		client = &http.Client{Timeout: robotsFetchTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client:    client,
		userAgent: userAgent,
		ttl:       defaultPolicyTTL,
		logger:    logger,
		policies:  make(map[string]policyEntry),
		negative:  make(map[string]struct{}),
		sitemaps:  make(map[string]sitemapEntry),
	}
}

// WithTTL overrides the policy cache validity, mainly for tests.
func (m *Manager) WithTTL(ttl time.Duration) *Manager {
	m.ttl = ttl
	return m
}

// IsAllowed reports whether the URL may be fetched under the domain's
// robots.txt. A missing or unreachable robots.txt allows everything and
// negative-caches the domain. Errors never block the crawl.
func (m *Manager) IsAllowed(ctx context.Context, target *url.URL) (bool, error) {
	if target == nil || target.Hostname() == "" {
		return false, fmt.Errorf("robots check: URL has no host")
	}
	urlStr := target.String()

	m.mu.Lock()
	if allowed, hit := m.lookupVerdictLocked(urlStr); hit {
		m.mu.Unlock()
		return allowed, nil
	}
	domain := strings.ToLower(target.Hostname())
	if _, ok := m.negative[domain]; ok {
		m.storeVerdictLocked(urlStr, true)
		m.mu.Unlock()
		return true, nil
	}
	entry, fresh := m.policies[domain]
	valid := fresh && time.Since(entry.fetched) <= m.ttl
	m.mu.Unlock()

	if !valid {
		policy, err := m.fetchPolicy(ctx, domain)
		if err != nil {
			// Treat as allow-all and remember the domain has no policy.
			m.logger.Debug("robots.txt unavailable, allowing all",
				zap.String("domain", domain), zap.Error(err))
			m.mu.Lock()
			m.negative[domain] = struct{}{}
			m.storeVerdictLocked(urlStr, true)
			m.mu.Unlock()
			return true, nil
		}
		entry = policyEntry{policy: policy, fetched: time.Now()}
		m.mu.Lock()
		m.policies[domain] = entry
		m.mu.Unlock()
	}

	allowed := entry.policy.CanFetch(m.userAgent, target)
	m.mu.Lock()
	m.storeVerdictLocked(urlStr, allowed)
	m.mu.Unlock()
	return allowed, nil
}

func (m *Manager) lookupVerdictLocked(urlStr string) (allowed, hit bool) {
	now := time.Now()
	for _, v := range m.verdicts {
		if v.url == urlStr && now.Sub(v.cached) <= verdictTTL {
			return v.allowed, true
		}
	}
	return false, false
}

func (m *Manager) storeVerdictLocked(urlStr string, allowed bool) {
	if len(m.verdicts) >= verdictCacheLimit {
		// Evict the oldest 20% once past capacity.
		m.verdicts = m.verdicts[len(m.verdicts)/5:]
	}
	m.verdicts = append(m.verdicts, verdictEntry{url: urlStr, allowed: allowed, cached: time.Now()})
}

// fetchPolicy downloads and parses http://{domain}/robots.txt. Any non-2xx
// status or network error is reported so the caller can negative-cache.
func (m *Manager) fetchPolicy(ctx context.Context, domain string) (*Policy, error) {
	robotsURL := fmt.Sprintf("http://%s/robots.txt", domain)
	content, err := m.fetchText(ctx, robotsURL)
	if err != nil {
		return nil, err
	}
	return ParsePolicy(content), nil
}

func (m *Manager) fetchText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	return string(body), nil
}
