// Package site builds the URLs and icon markup a rendered cart points at.
package site

import (
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/mordilloSan/sharingcart/cart"
)

const defaultTheme = "boost"

// Site knows the public root of the web application and the active theme.
type Site struct {
	WWWRoot string
	Theme   string
}

func New(wwwroot, theme string) *Site {
	if theme == "" {
		theme = defaultTheme
	}
	return &Site{WWWRoot: strings.TrimRight(wwwroot, "/"), Theme: theme}
}

// ImageURL returns the theme image URL for an icon of a component.
func (s *Site) ImageURL(icon, component string) string {
	return s.WWWRoot + "/theme/image.php/" + url.PathEscape(s.Theme) + "/" +
		url.PathEscape(component) + "/" + escapePath(icon)
}

// DefaultIcon is the module's own activity icon.
func (s *Site) DefaultIcon(modname string) string {
	return img(
		"class", "activityicon iconsmall iconcustom",
		"src", s.ImageURL("icon", "mod_"+modname),
		"alt", "",
	)
}

// ModuleIcon is an icon shipped by the module plugin.
func (s *Site) ModuleIcon(modname, icon string) string {
	return s.iconTag(icon, "mod_"+modname, modname)
}

// GenericIcon is an icon from the core icon set.
func (s *Site) GenericIcon(icon string) string {
	return s.iconTag(icon, "core", "")
}

func (s *Site) iconTag(icon, component, alt string) string {
	return img(
		"class", "icon activityicon",
		"alt", alt,
		"src", s.ImageURL(icon, component),
	)
}

// img renders a single <img> element; attribute values are escaped by the
// HTML renderer.
func img(attrs ...string) string {
	n := &html.Node{Type: html.ElementNode, Data: "img", DataAtom: atom.Img}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	var b strings.Builder
	// a lone void element with no children always renders
	_ = html.Render(&b, n)
	return b.String()
}

// PluginFileURL points at the download endpoint for a stored file.
func (s *Site) PluginFileURL(f cart.FileRef, forceDownload bool) string {
	filepath := f.FilePath
	if filepath == "" {
		filepath = "/"
	}
	var b strings.Builder
	b.WriteString(s.WWWRoot)
	b.WriteString("/pluginfile.php/")
	b.WriteString(strconv.FormatInt(f.ContextID, 10))
	b.WriteByte('/')
	b.WriteString(url.PathEscape(f.Component))
	b.WriteByte('/')
	b.WriteString(url.PathEscape(f.FileArea))
	b.WriteString(escapePath(filepath))
	b.WriteString(url.PathEscape(f.FileName))
	if forceDownload {
		b.WriteString("?forcedownload=1")
	}
	return b.String()
}

// escapePath escapes each segment of a slash separated path, keeping the slashes.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
