// Package scrape fetches company web pages and pulls contact emails out of
// them.
package scrape

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Page is one fetched page.
type Page struct {
	URL        string
	Title      string
	HTML       string
	Text       string
	StatusCode int
}

// Result holds a scraped page with its source.
type Result struct {
	Page   Page
	Source string // e.g. "local_http", "jina"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}

var spaceRe = regexp.MustCompile(`[ \t\r\f\v]+`)
var blankLinesRe = regexp.MustCompile(`\n\s*\n+`)

// blockElements end a line of text. Without the break, Text() runs adjacent
// blocks together ("Ltd.</p><p>sales@" becomes "Ltd.sales@").
const blockElements = "address, article, aside, blockquote, dd, div, dt, footer, form, " +
	"h1, h2, h3, h4, h5, h6, header, li, main, nav, p, pre, section, td, th"

// parsePage builds a Page from raw HTML. Scripts and styles are dropped from
// the text; nav and footer stay because contact details often live there.
func parsePage(url string, status int, html []byte) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Page{}, eris.Wrap(err, "scrape: parse html")
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title, _ = doc.Find("meta[property='og:title']").Attr("content")
		title = strings.TrimSpace(title)
	}

	doc.Find("script, style, noscript, svg").Remove()
	doc.Find("br, hr").ReplaceWithHtml("\n")
	doc.Find(blockElements).AppendHtml("\n")
	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}
	text = spaceRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n")

	return Page{
		URL:        url,
		Title:      title,
		HTML:       string(html),
		Text:       strings.TrimSpace(text),
		StatusCode: status,
	}, nil
}
