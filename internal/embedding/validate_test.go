package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	cfg := DefaultValidation()
	long := "https://static.bershka.net/4/photos2/2024/V/0/1/p/1234/567/800/1234567800_1_1_3.jpg?ts=1700000000000"
	tests := []struct {
		name   string
		in     string
		want   string
		reason string
	}{
		{name: "asset path", in: "https://static.bershka.net/assets/public/a/b/c.jpg", want: "https://static.bershka.net/assets/public/a/b/c.jpg"},
		{name: "protocol relative", in: "//static.bershka.net/assets/public/a.jpg", want: "https://static.bershka.net/assets/public/a.jpg"},
		{name: "duplicate slashes", in: "https://static.bershka.net//assets//public/a.jpg", want: "https://static.bershka.net/assets/public/a.jpg"},
		{name: "long retailer url", in: long, want: long},
		{name: "other host", in: "https://cdn.example/x.png", want: "https://cdn.example/x.png"},
		{name: "empty", in: "  ", reason: ReasonEmpty},
		{name: "data uri", in: "DATA:image/png;base64,AAAA", reason: ReasonDataURI},
		{name: "video", in: "https://static.bershka.net/assets/public/clip.mp4", reason: ReasonVideo},
		{name: "hls", in: "https://static.bershka.net/assets/public/master.m3u8", reason: ReasonVideo},
		{name: "html page", in: "https://www.example.com/product.html", reason: ReasonNotImage},
		{name: "wrong retailer host", in: "https://www.bershka.com/assets/public/a.jpg", reason: ReasonUntrusted},
		{name: "short placeholder", in: "https://static.bershka.net/x.jpg", reason: ReasonPlaceholder},
		{name: "relative", in: "/assets/public/a.jpg", reason: ReasonMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, reason, ok := Sanitize(tt.in, cfg)
			assert.Equal(t, tt.reason == "", ok)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.want, got)
		})
	}
}
