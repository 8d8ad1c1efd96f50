package scrape

import (
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var emailRe = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9._%+\-]*@[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?)*\.[a-z]{2,24}\b`)

// textEmailRe scans free text. The TLD is capped so an address glued to the
// next word ("x@acme.comPadding") yields nothing rather than a wrong address.
var textEmailRe = regexp.MustCompile(`(?i)\b[a-z0-9](?:[a-z0-9_%+\-]|\.[a-z0-9_%+\-])*@[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?)*\.[a-z]{2,6}\b`)

var junkDomains = []string{
	"example.com", "example.org", "domain.com", "yourdomain.com", "email.com",
	"test.com", "sentry.io", "wixpress.com",
}

var junkLocalParts = []string{
	"example", "test", "user", "username", "name", "yourname", "your", "email",
	"noreply", "no-reply", "donotreply",
}

var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".bmp", ".ico", ".css", ".js"}

// preferredLocalParts rank ahead of personal or technical addresses.
var preferredLocalParts = []string{"sales", "info", "contact", "export", "trade", "service", "inquiry", "enquiry"}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), ".,;:<>()[]\"'"))
}

// ValidEmail reports whether s looks like a real contact address.
func ValidEmail(s string) bool {
	s = NormalizeEmail(s)
	if !emailRe.MatchString(s) || emailRe.FindString(s) != s {
		return false
	}
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" || domain == "" {
		return false
	}
	for _, suf := range assetSuffixes {
		if strings.HasSuffix(domain, suf) {
			return false
		}
	}
	for _, d := range junkDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return false
		}
	}
	return !slices.Contains(junkLocalParts, local)
}

// ExtractEmails pulls addresses from mailto links and from visible text,
// mailto first, without duplicates.
func ExtractEmails(page Page) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(e string) {
		e = NormalizeEmail(e)
		if e == "" || seen[e] || !ValidEmail(e) {
			return
		}
		seen[e] = true
		out = append(out, e)
	}

	if page.HTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML)); err == nil {
			doc.Find(`a[href^="mailto:"], a[href^="MAILTO:"]`).Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				for _, e := range parseMailto(href) {
					add(e)
				}
			})
		}
	}

	text := page.Text
	if text == "" {
		text = page.HTML
	}
	// Common obfuscations.
	text = strings.NewReplacer(" [at] ", "@", "[at]", "@", "(at)", "@", " [dot] ", ".", "[dot]", ".").Replace(text)
	for _, m := range textEmailRe.FindAllString(text, -1) {
		add(m)
	}
	return out
}

func parseMailto(href string) []string {
	addr := href[len("mailto:"):]
	if i := strings.IndexByte(addr, '?'); i >= 0 {
		addr = addr[:i]
	}
	if unescaped, err := url.PathUnescape(addr); err == nil {
		addr = unescaped
	}
	return strings.Split(addr, ",")
}

// RankEmails orders addresses for picking a primary contact: those on the
// company's own domain first, then generic sales mailboxes.
func RankEmails(emails []string, website string) []string {
	host := hostOf(website)
	score := func(e string) int {
		local, domain, _ := strings.Cut(e, "@")
		s := 0
		if host != "" && (domain == host || strings.HasSuffix(host, "."+domain) || strings.HasSuffix(domain, "."+host)) {
			s += 2
		}
		for _, p := range preferredLocalParts {
			if strings.HasPrefix(local, p) {
				s++
				break
			}
		}
		return s
	}
	out := append([]string(nil), emails...)
	sort.SliceStable(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })
	return out
}

func hostOf(website string) string {
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
