package scrape

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// contactLinkHints mark anchors that probably lead to a contact page.
var contactLinkHints = []string{"contact", "kontakt", "about", "联系", "关于", "контакт"}

const maxContactPages = 5

// ContactResult is what a contact crawl found on one company website.
type ContactResult struct {
	Emails  []string `json:"emails"`
	FoundIn string   `json:"found_in,omitempty"`
	Source  string   `json:"source,omitempty"`
	Visited []string `json:"visited"`
	Failed  []string `json:"failed,omitempty"`
}

// ContactFinder crawls a company homepage and its contact pages for emails.
type ContactFinder struct {
	chain *Chain
	paths []string
}

// NewContactFinder creates a ContactFinder that tries paths (e.g. "/contact")
// after the homepage.
func NewContactFinder(chain *Chain, paths []string) *ContactFinder {
	return &ContactFinder{chain: chain, paths: paths}
}

// Find visits the homepage, then linked and configured contact pages, and
// stops at the first page that yields an address. It errors only when no
// page could be fetched at all.
func (f *ContactFinder) Find(ctx context.Context, website string) (*ContactResult, error) {
	base, err := NormalizeWebsite(website)
	if err != nil {
		return nil, err
	}

	res := &ContactResult{}
	queue := []string{base.String()}
	queued := map[string]bool{base.String(): true}
	enqueue := func(u string) {
		if !queued[u] && len(queue) < maxContactPages+len(f.paths) {
			queued[u] = true
			queue = append(queue, u)
		}
	}
	for _, p := range f.paths {
		enqueue(base.ResolveReference(&url.URL{Path: p}).String())
	}

	for i := 0; i < len(queue) && len(res.Visited)+len(res.Failed) < maxContactPages; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		target := queue[i]

		r, err := f.chain.Scrape(ctx, target)
		if err != nil {
			res.Failed = append(res.Failed, target)
			zap.L().Debug("scrape: contact page failed", zap.String("url", target), zap.Error(err))
			continue
		}
		res.Visited = append(res.Visited, target)

		if emails := ExtractEmails(r.Page); len(emails) > 0 {
			res.Emails = RankEmails(emails, website)
			res.FoundIn = target
			res.Source = r.Source
			return res, nil
		}

		if i == 0 {
			for _, link := range contactLinks(r.Page, base, f.chain.PathMatcher) {
				enqueue(link)
			}
		}
	}

	if len(res.Visited) == 0 {
		return res, eris.Errorf("scrape: no page reachable on %s", base.Host)
	}
	return res, nil
}

// contactLinks returns same-host links whose href or text hints at a contact
// page.
func contactLinks(page Page, base *url.URL, matcher *PathMatcher) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		hint := strings.ToLower(href + " " + s.Text())
		matched := false
		for _, h := range contactLinkHints {
			if strings.Contains(hint, h) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}
		u, err := base.Parse(strings.TrimSpace(href))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		if !strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), strings.TrimPrefix(base.Hostname(), "www.")) {
			return
		}
		u.Fragment = ""
		if matcher != nil && matcher.IsExcluded(u.String()) {
			return
		}
		out = append(out, u.String())
	})
	return out
}

// NormalizeWebsite turns a bare domain or URL into an absolute http(s) URL
// pointing at the site root.
func NormalizeWebsite(website string) (*url.URL, error) {
	w := strings.TrimSpace(website)
	if w == "" {
		return nil, eris.New("scrape: empty website")
	}
	if !strings.Contains(w, "://") {
		w = "https://" + w
	}
	u, err := url.Parse(w)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: parse website %q", website)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, eris.Errorf("scrape: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, eris.Errorf("scrape: website %q has no host", website)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, nil
}
