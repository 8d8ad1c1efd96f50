package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"sales@acme-cnc.com", true},
		{" Info@Acme.CN ", true},
		{"export@shenzhen-parts.com.cn", true},
		{"user@example.com", false},
		{"sales@example.com", false},
		{"noreply@acme.com", false},
		{"abc123@o1.ingest.sentry.io", false},
		{"logo@2x.png", false},
		{"banner@hero.webp", false},
		{"not-an-email", false},
		{"a@b", false},
		{"sales@acme.com extra", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidEmail(tt.in))
		})
	}
}

func TestExtractEmails_MailtoFirst(t *testing.T) {
	page := Page{
		HTML: `<html><body>
<p>Write to info@acme-cnc.com or call us.</p>
<a href="mailto:Sales@Acme-CNC.com?subject=Quote">Get a quote</a>
<a href="mailto:export%40acme-cnc.com,info@acme-cnc.com">Export</a>
<img src="/img/logo@2x.png">
</body></html>`,
		Text: "Write to info@acme-cnc.com or call us. Get a quote Export",
	}

	got := ExtractEmails(page)
	assert.Equal(t, []string{"sales@acme-cnc.com", "export@acme-cnc.com", "info@acme-cnc.com"}, got)
}

func TestExtractEmails_Obfuscated(t *testing.T) {
	page := Page{Text: "Contact: sales [at] acme-cnc.com"}
	assert.Equal(t, []string{"sales@acme-cnc.com"}, ExtractEmails(page))
}

func TestExtractEmails_FallsBackToHTML(t *testing.T) {
	page := Page{HTML: "<div>trade@acme.cn</div>"}
	assert.Equal(t, []string{"trade@acme.cn"}, ExtractEmails(page))
}

func TestExtractEmails_GluedToNextWord(t *testing.T) {
	// An address run into following letters has no reliable end.
	assert.Empty(t, ExtractEmails(Page{Text: "Contact sales@acme-cnc.comPadding for quotes"}))
	assert.Equal(t, []string{"sales@acme-cnc.com"}, ExtractEmails(Page{Text: "Contact sales@acme-cnc.com, for quotes"}))
	assert.Equal(t, []string{"info@acme.company"}, ExtractEmails(Page{
		HTML: `<a href="mailto:info@acme.company">mail</a>`,
		Text: "mail",
	}))
}

func TestExtractEmails_None(t *testing.T) {
	assert.Empty(t, ExtractEmails(Page{Text: "no contact details here"}))
}

func TestRankEmails(t *testing.T) {
	emails := []string{"john@gmail.com", "hr@acme.com", "sales@acme.com", "info@other.com"}
	got := RankEmails(emails, "https://www.acme.com/en/")
	assert.Equal(t, []string{"sales@acme.com", "hr@acme.com", "info@other.com", "john@gmail.com"}, got)
	// Input untouched.
	assert.Equal(t, "john@gmail.com", emails[0])
}

func TestRankEmails_NoWebsite(t *testing.T) {
	got := RankEmails([]string{"john@x.com", "info@x.com"}, "")
	assert.Equal(t, []string{"info@x.com", "john@x.com"}, got)
}
