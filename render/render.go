// Package render turns a sharing cart tree into the nested list markup shown in
// the cart block.
package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mordilloSan/go_logger/logger"
	"golang.org/x/net/html"

	"github.com/mordilloSan/sharingcart/capability"
	"github.com/mordilloSan/sharingcart/cart"
)

// ErrMalformedTree is returned when the tree holds a node the renderer does not know.
var ErrMalformedTree = errors.New("malformed cart tree")

const (
	defaultIDPrefix      = "block_sharing_cart"
	defaultLookupTimeout = 2 * time.Second
)

// requiredCapabilities gate restoring items out of the cart.
var requiredCapabilities = []string{
	capability.RestoreCourse,
	capability.RestoreActivity,
}

// Localizer resolves interface strings.
type Localizer interface {
	Localize(key string, a ...string) (string, error)
}

// FileResolver finds the stored backup file of an item by its storage filename.
type FileResolver interface {
	File(ctx context.Context, filename string) (cart.FileRef, error)
}

// URLBuilder builds the download URL of a stored file.
type URLBuilder interface {
	PluginFileURL(f cart.FileRef, forceDownload bool) string
}

// IconResolver produces icon markup from the theme.
type IconResolver interface {
	DefaultIcon(modname string) string
	ModuleIcon(modname, icon string) string
	GenericIcon(icon string) string
}

// Deps are the collaborators a Renderer consults.
type Deps struct {
	Capabilities capability.Checker
	Strings      Localizer
	Files        FileResolver
	URLs         URLBuilder
	Icons        IconResolver
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithIDPrefix sets the prefix of item element ids ("<prefix>-item-<id>").
func WithIDPrefix(prefix string) Option {
	return func(r *Renderer) { r.idPrefix = prefix }
}

// WithLookupTimeout bounds every backup file lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.lookupTimeout = d
		}
	}
}

// WithFormatter replaces the directory label formatter.
func WithFormatter(f func(string) string) Option {
	return func(r *Renderer) {
		if f != nil {
			r.format = f
		}
	}
}

// Renderer renders cart trees. It never modifies the tree it is given.
type Renderer struct {
	deps          Deps
	idPrefix      string
	lookupTimeout time.Duration
	format        func(string) string
}

// New returns a Renderer using deps, with a 2s file lookup timeout and the
// "block_sharing_cart" id prefix unless opts say otherwise.
func New(deps Deps, opts ...Option) *Renderer {
	r := &Renderer{
		deps:          deps,
		idPrefix:      defaultIDPrefix,
		lookupTimeout: defaultLookupTimeout,
		format:        FormatString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderTree renders the whole cart as `<ul class="tree list">`, preceded by an
// alert when the user lacks a capability needed to restore items.
func (r *Renderer) RenderTree(ctx context.Context, root *cart.Directory) (string, error) {
	if root == nil {
		return "", fmt.Errorf("%w: nil root", ErrMalformedTree)
	}

	ul := elem("ul", "class", "tree list")

	alert, err := r.capabilityAlert()
	if err != nil {
		return "", err
	}
	if alert != nil {
		ul.AppendChild(alert)
	}

	if err := r.renderNode(ctx, ul, root, "/"); err != nil {
		return "", err
	}
	return renderString(ul)
}

func (r *Renderer) capabilityAlert() (*html.Node, error) {
	required := capability.Init(r.deps.Capabilities, requiredCapabilities...)
	disallowed := required.DisallowedActions()
	if len(disallowed) == 0 {
		return nil, nil
	}

	key := "missing_capability"
	if required.TotalMissing() > 1 {
		key = "missing_capabilities"
	}
	msg, err := r.localize(key, strings.Join(required.MissingCapabilities(), ", "))
	if err != nil {
		return nil, err
	}

	return appendChildren(elem("div",
		"class", "alert alert-danger",
		"role", "alert",
		"id", "alert-disallow",
		"data-disallowed-actions", strings.Join(disallowed, ","),
	), textNode(msg)), nil
}

func (r *Renderer) renderNode(ctx context.Context, parent *html.Node, dir *cart.Directory, path string) error {
	for _, child := range dir.Children {
		switch n := child.(type) {
		case *cart.Directory:
			if n == nil {
				return fmt.Errorf("%w: nil directory under %s", ErrMalformedTree, path)
			}
			next := cart.ChildPath(path, n.Name)
			li, list, err := r.renderDirOpen(next, n)
			if err != nil {
				return err
			}
			parent.AppendChild(li)
			if err := r.renderNode(ctx, list, n, next); err != nil {
				return err
			}
		case *cart.Leaf:
			if n == nil {
				return fmt.Errorf("%w: nil leaf under %s", ErrMalformedTree, path)
			}
			for _, it := range n.Items {
				// Placeholders keep an otherwise empty folder visible.
				if it == nil || it.Placeholder() {
					continue
				}
				li, err := r.renderItem(ctx, path, it)
				if err != nil {
					return err
				}
				parent.AppendChild(li)
			}
		default:
			return fmt.Errorf("%w: unexpected %T under %s", ErrMalformedTree, child, path)
		}
	}
	return nil
}

// renderDirOpen builds the directory <li> and returns it together with the
// collapsed child list the directory's content goes into.
func (r *Renderer) renderDirOpen(path string, dir *cart.Directory) (*html.Node, *html.Node, error) {
	var courses []string
	seen := make(map[string]bool)
	ready := true
	for _, it := range dir.Items() {
		if it == nil {
			continue
		}
		if it.CourseFullName != "" && !seen[it.CourseFullName] {
			seen[it.CourseFullName] = true
			courses = append(courses, it.CourseFullName)
		}
		if it.IsCopying() {
			ready = false
		}
	}

	var courseSuffix string
	switch {
	case len(courses) == 1:
		courseSuffix = " [" + courses[0] + "]"
	case len(courses) > 1:
		various, err := r.localize("variouscourse")
		if err != nil {
			return nil, nil, err
		}
		courseSuffix = " [" + various + "]"
	}

	depth := len(cart.Segments(path)) - 1
	if depth < 0 {
		depth = 0
	}

	class := "directory sharing-cart-item"
	copying := "0"
	if !ready {
		class += " copying text-muted"
		copying = "1"
	}

	li := elem("li",
		"class", class,
		"directory-path", path,
		"data-is-copying", copying,
	)
	list := elem("ul", "class", "list", "style", "display:none;")
	appendChildren(li,
		appendChildren(elem("div", "class", indentClass(depth), "title", path+courseSuffix),
			appendChildren(elem("div", "class", "toggle-wrapper"),
				elem("i", "class", "icon fa fa-folder-o", "alt", ""),
				appendChildren(elem("span", "class", "instancename"), textNode(r.format(cart.LastSegment(path)))),
			),
			elem("span", "class", "commands"),
		),
		list,
	)
	return li, list, nil
}

func (r *Renderer) renderItem(ctx context.Context, path string, it *cart.Item) (*html.Node, error) {
	depth := len(cart.Segments(path))

	copying := it.IsCopying()
	var (
		file    cart.FileRef
		fileErr error
	)
	if !copying {
		file, fileErr = r.lookupFile(ctx, it.Filename)
		if fileErr != nil {
			logger.Warnf("Backup file %q of cart item %d unavailable, showing it as copying: %v", it.Filename, it.ID, fileErr)
			copying = true
		}
	}
	disabled := copying || it.Disabled()

	classes := []string{"activity", "sharing-cart-item", it.ModName, "modtype_" + it.ModName}
	if it.UninstalledPlugin {
		classes = append(classes, "disabled")
	}
	if copying {
		classes = append(classes, "text-muted", "copying")
	}
	if !disabled && !copying {
		classes = append(classes, "text-dark")
	}

	title := HTMLToText(it.ModText)
	if it.CourseFullName != "" {
		title += " [" + it.CourseFullName + "]"
	}

	text, err := r.labelText(it)
	if err != nil {
		return nil, err
	}

	id := strconv.FormatInt(it.ID, 10)
	li := elem("li",
		"class", strings.Join(classes, " "),
		"id", r.idPrefix+"-item-"+id,
		"data-id", id,
		"data-disable-copy", boolAttr(disabled),
		"data-is-copying", boolAttr(copying),
	)
	div := elem("div", "class", indentClass(depth), "title", title)
	li.AppendChild(div)

	icon, err := r.RenderModIcon(it)
	if err != nil {
		return nil, err
	}
	if err := appendMarkup(div, icon); err != nil {
		return nil, fmt.Errorf("icon of cart item %d: %w", it.ID, err)
	}

	label := elem("span", "class", "instancename")
	if err := appendMarkup(label, text); err != nil {
		return nil, fmt.Errorf("text of cart item %d: %w", it.ID, err)
	}
	div.AppendChild(label)

	commands := elem("span", "class", "commands")
	if !copying {
		button, err := r.downloadButton(file)
		if err != nil {
			return nil, err
		}
		commands.AppendChild(button)
	}
	div.AppendChild(commands)

	return li, nil
}

// labelText is the text shown for an item: labels lose their markup and images,
// and everything long is truncated.
func (r *Renderer) labelText(it *cart.Item) (string, error) {
	text := it.ModText
	if it.ModName == "label" {
		text = StripLabelMarkup(text)
		if HasImage(text) {
			placeholder, err := r.localize("label_image_replaced_text")
			if err != nil {
				return "", err
			}
			text = ReplaceImagesWithPlaceholder(text, placeholder)
		}
	}
	return Truncate(text, TruncateLength), nil
}

func (r *Renderer) lookupFile(ctx context.Context, filename string) (cart.FileRef, error) {
	if r.deps.Files == nil {
		return cart.FileRef{}, errors.New("no file resolver configured")
	}
	if filename == "" {
		return cart.FileRef{}, errors.New("item has no backup filename")
	}
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()
	return r.deps.Files.File(ctx, filename)
}

func (r *Renderer) downloadButton(file cart.FileRef) (*html.Node, error) {
	alt, err := r.localize("download")
	if err != nil {
		return nil, err
	}
	title, err := r.localize("downloadfile")
	if err != nil {
		return nil, err
	}
	href := ""
	if r.deps.URLs != nil {
		href = r.deps.URLs.PluginFileURL(file, true)
	}
	return appendChildren(elem("a", "href", href, "title", title),
		elem("i", "class", "fa fa-download", "alt", alt),
	), nil
}

func (r *Renderer) localize(key string, a ...string) (string, error) {
	if r.deps.Strings == nil {
		return "", fmt.Errorf("no localizer configured for %q", key)
	}
	return r.deps.Strings.Localize(key, a...)
}

func indentClass(depth int) string {
	return "sc-indent-" + strconv.Itoa(depth)
}

func boolAttr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
