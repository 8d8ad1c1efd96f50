package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/topic-enricher/internal/config"
)

func TestMarketplaceFilter_IsMarketplace(t *testing.T) {
	f := NewMarketplaceFilter(config.DefaultMarketplaces)

	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.alibaba.com/company/xyz", true},
		{"https://shop123.1688.com", true},
		{"made-in-china.com/showroom/abc", true},
		{"HTTP://DHGATE.COM/store", true},
		{"https://www.precision-cnc.cn", false},
		{"https://notalibaba.com", false},
		{"https://alibaba.com.example.org", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, f.IsMarketplace(tt.url))
		})
	}
}

func TestMarketplaceFilter_Clean(t *testing.T) {
	f := NewMarketplaceFilter([]string{" www.Alibaba.com ", ""})

	got, dropped := f.Clean(" https://cnc.cn ")
	assert.Equal(t, "https://cnc.cn", got)
	assert.False(t, dropped)

	got, dropped = f.Clean("https://m.alibaba.com/x")
	assert.Empty(t, got)
	assert.True(t, dropped)

	got, dropped = f.Clean("null")
	assert.Empty(t, got)
	assert.False(t, dropped)
}
