package policy

import (
	"slices"
	"strings"
	"time"
)

type ResourceClass string

const (
	ClassStatic  ResourceClass = "static"
	ClassAPI     ResourceClass = "api"
	ClassImage   ResourceClass = "image"
	ClassFont    ResourceClass = "font"
	ClassDynamic ResourceClass = "dynamic"
)

// Logical partition names. The physical name embeds the prefix and version.
const (
	PartitionStatic  = "static"
	PartitionDynamic = "dynamic"
	PartitionImages  = "images"
)

const PlaceholderPath = "/images/placeholder.svg"

// Policy is built once at startup and never mutated afterwards.
type Policy struct {
	Version       string
	Prefix        string
	CaptureHeader string

	SeedPaths      []string
	ScriptMarkers  []string
	APIPrefixes    []string
	ImageExts      []string
	ImageDirs      []string
	FontHosts      []string
	FontExts       []string
	WebPSourceExts []string
	MaxAge         map[ResourceClass]time.Duration
	PlaceholderTTL time.Duration
	RefreshTimeout time.Duration
}

func Default(prefix, version string) Policy {
	return Policy{
		Version:       version,
		Prefix:        prefix,
		CaptureHeader: "Date",
		SeedPaths: []string{
			"/",
			"/index.html",
			"/favicon.ico",
			"/manifest.json",
			PlaceholderPath,
		},
		ScriptMarkers: []string{".js", ".css", ".jsx", ".ts", ".tsx", ".mjs"},
		APIPrefixes: []string{
			"/api/products",
			"/api/categories",
			"/api/search",
			"/api/",
		},
		ImageExts:      []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".ico", ".avif"},
		ImageDirs:      []string{"/images/", "/static/"},
		FontHosts:      []string{"fonts.googleapis.com", "fonts.gstatic.com"},
		FontExts:       []string{".woff", ".woff2", ".ttf", ".otf", ".eot"},
		WebPSourceExts: []string{".jpg", ".jpeg", ".png"},
		MaxAge: map[ResourceClass]time.Duration{
			ClassStatic: 30 * 24 * time.Hour,
			ClassAPI:    5 * time.Minute,
			ClassImage:  14 * 24 * time.Hour,
		},
		PlaceholderTTL: 24 * time.Hour,
		RefreshTimeout: 10 * time.Second,
	}
}

func (p Policy) PartitionName(logical string) string {
	return p.Prefix + "-" + logical + "-" + p.Version
}

func (p Policy) Partitions() []string {
	return []string{
		p.PartitionName(PartitionStatic),
		p.PartitionName(PartitionDynamic),
		p.PartitionName(PartitionImages),
	}
}

// PartitionFor returns the physical partition a class writes to.
// Fonts share the static partition.
func (p Policy) PartitionFor(class ResourceClass) string {
	switch class {
	case ClassStatic, ClassFont:
		return p.PartitionName(PartitionStatic)
	case ClassImage:
		return p.PartitionName(PartitionImages)
	default:
		return p.PartitionName(PartitionDynamic)
	}
}

// Owns reports whether a partition name was created under this prefix.
// Anything else in a shared store is left alone.
func (p Policy) Owns(partition string) bool {
	return strings.HasPrefix(partition, p.Prefix+"-")
}

// IsCrossOriginAllowed reports whether requests to host may be cached even
// though it is not the origin.
func (p Policy) IsCrossOriginAllowed(host string) bool {
	return slices.Contains(p.FontHosts, strings.ToLower(host))
}

// IsCurrent reports whether a partition belongs to the running version.
func (p Policy) IsCurrent(partition string) bool {
	return strings.Contains(partition, p.Version)
}
