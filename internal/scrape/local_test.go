package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalScraper_CleanHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`<html><head><title>Acme Machining</title><style>body{color:red}</style></head>
<body><nav>Menu</nav><h1>Welcome</h1><p>Precision parts &amp; assemblies.</p>
<script>var x = "tracker";</script>
<footer>Email: sales@acme-cnc.com</footer></body></html>`))
	}))
	defer srv.Close()

	s := NewLocalScraper(5 * time.Second)
	result, err := s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "local_http", result.Source)
	assert.Equal(t, "Acme Machining", result.Page.Title)
	assert.Equal(t, 200, result.Page.StatusCode)
	assert.Contains(t, result.Page.Text, "Welcome")
	assert.Contains(t, result.Page.Text, "Precision parts & assemblies.")
	assert.Contains(t, result.Page.Text, "sales@acme-cnc.com")
	assert.NotContains(t, result.Page.Text, "tracker")
	assert.NotContains(t, result.Page.Text, "color:red")
	assert.Contains(t, result.Page.HTML, "<footer>")
}

func TestLocalScraper_Cloudflare(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cf-Ray", "abc123")
		w.WriteHeader(403)
		_, _ = w.Write([]byte(`<html><body>Access denied</body></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper(0).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked (cloudflare)")
}

func TestLocalScraper_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper(0).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLocalScraper_HTTP404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		_, _ = w.Write([]byte(`<html><body>Not found page with lots of content here to exceed the empty threshold easily</body></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper(0).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestLocalScraper_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/en/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/en/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>EN</title></head><body>English home page with enough body text to count.</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	result, err := NewLocalScraper(0).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/en/", result.Page.URL)
}

func TestLocalScraper_NameAndSupports(t *testing.T) {
	s := NewLocalScraper(0)
	assert.Equal(t, "local_http", s.Name())
	assert.True(t, s.Supports("https://example.com"))
}

func TestParsePage_OGTitleFallback(t *testing.T) {
	page, err := parsePage("https://acme.com", 200, []byte(`<html><head><meta property="og:title" content=" Acme "></head><body>x</body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Acme", page.Title)
	assert.Equal(t, "x", page.Text)
}

func TestParsePage_SeparatesBlocks(t *testing.T) {
	html := `<html><body><p>Shenzhen Acme Precision Co. Ltd.</p><p>sales@acme-cnc.com</p><div>Padding text</div>` +
		`<ul><li>Tel</li><li>+86 755 1234</li></ul>Line<br>break</body></html>`
	page, err := parsePage("https://acme-cnc.com", 200, []byte(html))
	require.NoError(t, err)

	assert.NotContains(t, page.Text, "Ltd.sales")
	assert.NotContains(t, page.Text, "compadding")
	assert.NotContains(t, page.Text, "Tel+86")
	assert.NotContains(t, page.Text, "Linebreak")
	assert.Equal(t, []string{"sales@acme-cnc.com"}, ExtractEmails(Page{Text: page.Text}))
}
