package strategy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/52poke/kura/internal/cache"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="300" height="200" viewBox="0 0 300 200">` +
	`<rect width="300" height="200" fill="#f0f0f0"/>` +
	`<text x="150" y="100" font-family="sans-serif" font-size="16" fill="#999999" text-anchor="middle" dominant-baseline="middle">Image not available</text>` +
	`</svg>`

// image is cache-first with one WebP retry for JPEG/PNG sources. It never
// fails: without network or cache it answers with a placeholder.
func (d *Dispatcher) image(ctx context.Context, req Request) (Result, error) {
	partition := d.policy.PartitionFor(req.Class)
	cached, hit := d.match(ctx, partition, req.URL)
	if hit && !d.expired(req.Class, cached) {
		return Result{Entry: cached, Source: SourceHit}, nil
	}

	fresh, err := d.fetch(ctx, req.URL, req.Header)
	if err == nil && fresh.OK() {
		d.put(ctx, partition, req.URL, fresh)
		return Result{Entry: fresh, Source: SourceNetwork}, nil
	}
	d.logger.DebugContext(ctx, "image fetch failed", "url", req.URL, "status", fresh.Status, "error", err)

	if alt, ok := d.webpURL(req.URL); ok {
		webp, werr := d.fetch(ctx, alt, req.Header)
		if werr == nil && webp.OK() {
			d.put(ctx, partition, req.URL, webp)
			return Result{Entry: webp, Source: SourceNetwork}, nil
		}
		d.logger.DebugContext(ctx, "webp fallback failed", "url", alt, "status", webp.Status, "error", werr)
	}

	if hit {
		return Result{Entry: cached, Source: SourceFallback}, nil
	}
	return Result{Entry: d.placeholder(req.URL), Source: SourcePlaceholder}, nil
}

// webpURL swaps a .jpg/.jpeg/.png path extension for .webp, keeping the query.
func (d *Dispatcher) webpURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	ext := path.Ext(u.Path)
	if !slices.Contains(d.policy.WebPSourceExts, strings.ToLower(ext)) {
		return "", false
	}
	u.Path = strings.TrimSuffix(u.Path, ext) + ".webp"
	u.RawPath = ""
	return u.String(), true
}

func (d *Dispatcher) placeholder(target string) cache.Entry {
	h := http.Header{}
	h.Set("Content-Type", "image/svg+xml")
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(d.policy.PlaceholderTTL.Seconds())))
	return cache.Entry{
		URL:    target,
		Status: http.StatusOK,
		Header: h,
		Body:   []byte(placeholderSVG),
	}
}
