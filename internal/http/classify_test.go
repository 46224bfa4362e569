package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/52poke/kura/internal/policy"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	p := policy.Default("kura", "v1")

	tests := []struct {
		url  string
		want policy.ResourceClass
	}{
		{"https://shop.test/", policy.ClassStatic},
		{"https://shop.test", policy.ClassStatic},
		{"https://shop.test/index.html", policy.ClassStatic},
		{"https://shop.test/favicon.ico", policy.ClassStatic},
		{"https://shop.test/manifest.json", policy.ClassStatic},
		{"https://shop.test/images/placeholder.svg", policy.ClassStatic},
		{"https://shop.test/assets/index-4f2a.js", policy.ClassStatic},
		{"https://shop.test/static/css/main.css?v=3", policy.ClassStatic},
		{"https://shop.test/src/App.jsx", policy.ClassStatic},
		{"https://shop.test/src/main.tsx", policy.ClassStatic},

		{"https://shop.test/api/products?limit=5", policy.ClassAPI},
		{"https://shop.test/api/categories/shoes", policy.ClassAPI},
		{"https://shop.test/api/search?q=red", policy.ClassAPI},
		{"https://shop.test/api/cart", policy.ClassAPI},
		{"https://shop.test/api/products/42/images/front.jpg", policy.ClassAPI},
		{"https://shop.test/api/fonts/inter.woff2", policy.ClassAPI},
		{"https://shop.test/api/static/banner.png", policy.ClassAPI},

		{"https://shop.test/images/shoe.jpg", policy.ClassImage},
		{"https://cdn.shop.test/p/shoe.WEBP", policy.ClassImage},
		{"https://shop.test/static/media/banner", policy.ClassImage},
		{"https://shop.test/img/logo.avif", policy.ClassImage},

		{"https://fonts.googleapis.com/css2?family=Inter", policy.ClassFont},
		{"https://fonts.gstatic.com/s/inter/v12/x", policy.ClassFont},
		{"https://shop.test/fonts/inter.woff2", policy.ClassFont},
		{"https://shop.test/fonts/inter.ttf", policy.ClassFont},

		{"https://shop.test/products/42", policy.ClassDynamic},
		{"https://shop.test/checkout", policy.ClassDynamic},
		{"https://shop.test/data.json", policy.ClassDynamic},
		{"https://shop.test/assets/bundle.js.map", policy.ClassDynamic},
		{"https://shop.test/docs/app.css.txt", policy.ClassDynamic},
		{"/assets/app.js", policy.ClassStatic},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			require.NoError(t, err)
			require.Equal(t, tt.want, Classify(p, u))
		})
	}
}

func TestIsEligible(t *testing.T) {
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodHead, http.MethodPatch} {
		require.False(t, IsEligible(httptest.NewRequest(m, "/api/products", nil)), m)
	}
	require.True(t, IsEligible(httptest.NewRequest(http.MethodGet, "/api/products", nil)))
}
