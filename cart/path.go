package cart

import (
	"path"
	"strings"
)

// NormalizePath returns the canonical tree path: leading "/", no trailing "/"
// (root stays "/"). "." and ".." segments are resolved so a path can never climb above root.
func NormalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	cleaned := path.Clean("/" + strings.Trim(p, "/"))
	if cleaned == "" || cleaned == "." {
		return "/"
	}
	return cleaned
}

// Segments splits a tree path into its non-empty components.
func Segments(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ChildPath joins a directory name onto a parent path without collapsing the name.
func ChildPath(parent, name string) string {
	return strings.TrimRight(parent, "/") + "/" + name
}

// LastSegment returns the final component of a path, or "" for root.
func LastSegment(p string) string {
	segs := Segments(p)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
