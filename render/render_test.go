package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/mordilloSan/sharingcart/capability"
	"github.com/mordilloSan/sharingcart/cart"
	"github.com/mordilloSan/sharingcart/i18n"
)

var allCaps = capability.NewSet(capability.RestoreCourse, capability.RestoreActivity)

type fakeFiles map[string]cart.FileRef

func (f fakeFiles) File(_ context.Context, filename string) (cart.FileRef, error) {
	ref, ok := f[filename]
	if !ok {
		return cart.FileRef{}, fmt.Errorf("file %s not found", filename)
	}
	return ref, nil
}

type blockingFiles struct{}

func (blockingFiles) File(ctx context.Context, _ string) (cart.FileRef, error) {
	<-ctx.Done()
	return cart.FileRef{}, ctx.Err()
}

type fakeURLs struct{}

func (fakeURLs) PluginFileURL(f cart.FileRef, force bool) string {
	return fmt.Sprintf("/pluginfile.php/%d/%s/%s%s%s?force=%t", f.ContextID, f.Component, f.FileArea, f.FilePath, f.FileName, force)
}

type fakeIcons struct {
	calls []string
}

func (f *fakeIcons) DefaultIcon(mod string) string {
	f.calls = append(f.calls, "default:"+mod)
	return `<i class="fakeicon default"></i>`
}

func (f *fakeIcons) ModuleIcon(mod, icon string) string {
	f.calls = append(f.calls, "module:"+mod+"/"+icon)
	return `<i class="fakeicon module"></i>`
}

func (f *fakeIcons) GenericIcon(icon string) string {
	f.calls = append(f.calls, "generic:"+icon)
	return `<i class="fakeicon generic"></i>`
}

type mapStrings map[string]string

func (m mapStrings) Localize(key string, a ...string) (string, error) {
	s, ok := m[key]
	if !ok {
		return "", errors.New("missing string " + key)
	}
	if len(a) > 0 {
		s = strings.ReplaceAll(s, "{$a}", a[0])
	}
	return s, nil
}

func newTestRenderer(t *testing.T, caps capability.Checker, files FileResolver, opts ...Option) (*Renderer, *fakeIcons) {
	t.Helper()
	tbl, err := i18n.New("en")
	require.NoError(t, err)
	icons := &fakeIcons{}
	if files == nil {
		files = fakeFiles{}
	}
	return New(Deps{
		Capabilities: caps,
		Strings:      tbl,
		Files:        files,
		URLs:         fakeURLs{},
		Icons:        icons,
	}, opts...), icons
}

func readyFile(name string) cart.FileRef {
	return cart.FileRef{ID: 9, ContextID: 5, Component: "user", FileArea: "backup", FilePath: "/", FileName: name}
}

func mustRender(t *testing.T, r *Renderer, root *cart.Directory) string {
	t.Helper()
	out, err := r.RenderTree(context.Background(), root)
	require.NoError(t, err)
	return out
}

func parse(t *testing.T, out string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(out))
	require.NoError(t, err)
	return doc
}

func find(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			found = append(found, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func byID(t *testing.T, doc *html.Node, id string) *html.Node {
	t.Helper()
	nodes := find(doc, func(n *html.Node) bool { return attr(n, "id") == id })
	require.Len(t, nodes, 1, "element #%s", id)
	return nodes[0]
}

func byDirectory(t *testing.T, doc *html.Node, path string) *html.Node {
	t.Helper()
	nodes := find(doc, func(n *html.Node) bool { return attr(n, "directory-path") == path })
	require.Len(t, nodes, 1, "directory %s", path)
	return nodes[0]
}

func firstChildElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
	}
	return nil
}

func instanceName(t *testing.T, li *html.Node) *html.Node {
	t.Helper()
	spans := find(li, func(n *html.Node) bool { return hasClass(n, "instancename") })
	require.NotEmpty(t, spans)
	return spans[0]
}

func TestRenderTreeOnlyPlaceholder(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, nil)
	root := cart.BuildTree([]*cart.Item{{ID: 1, ModName: ""}})

	assert.Equal(t, `<ul class="tree list"></ul>`, mustRender(t, r, root))
}

func TestRenderTreeSkipsPlaceholdersButKeepsFolder(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, fakeFiles{"b.mbz": readyFile("b.mbz")})
	root := cart.BuildTree([]*cart.Item{
		{ID: 1, ModName: "", Tree: "/Course/Empty section", FileID: 1},
		{ID: 2, ModName: "page", Tree: "/Course", FileID: 3, Filename: "b.mbz"},
	})

	out := mustRender(t, r, root)
	assert.NotContains(t, out, "block_sharing_cart-item-1")
	assert.Contains(t, out, "block_sharing_cart-item-2")

	doc := parse(t, out)
	byDirectory(t, doc, "/Course/Empty section")
}

func TestRenderItemCopyingAndDisabledStates(t *testing.T) {
	files := fakeFiles{
		"ready.mbz":       readyFile("ready.mbz"),
		"uninstalled.mbz": readyFile("uninstalled.mbz"),
	}
	r, _ := newTestRenderer(t, allCaps, files)
	root := cart.BuildTree([]*cart.Item{
		{ID: 1, ModName: "forum", ModText: "Ready", FileID: 10, Filename: "ready.mbz"},
		{ID: 2, ModName: "quiz", ModText: "Copying", FileID: 0, Filename: "pending.mbz"},
		{ID: 3, ModName: "hvp", ModText: "Gone", FileID: 11, Filename: "uninstalled.mbz", UninstalledPlugin: true},
		{ID: 4, ModName: "page", ModText: "Both", FileID: -1, UninstalledPlugin: true},
	})
	doc := parse(t, mustRender(t, r, root))

	tests := []struct {
		id       string
		copying  string
		disabled string
		classes  []string
		absent   []string
	}{
		{"1", "0", "0", []string{"activity", "forum", "modtype_forum", "text-dark"}, []string{"copying", "disabled", "text-muted"}},
		{"2", "1", "1", []string{"quiz", "modtype_quiz", "text-muted", "copying"}, []string{"text-dark", "disabled"}},
		{"3", "0", "1", []string{"hvp", "disabled"}, []string{"text-dark", "copying"}},
		{"4", "1", "1", []string{"disabled", "copying", "text-muted"}, []string{"text-dark"}},
	}
	for _, tt := range tests {
		t.Run("item "+tt.id, func(t *testing.T) {
			li := byID(t, doc, "block_sharing_cart-item-"+tt.id)
			assert.Equal(t, tt.id, attr(li, "data-id"))
			assert.Equal(t, tt.copying, attr(li, "data-is-copying"))
			assert.Equal(t, tt.disabled, attr(li, "data-disable-copy"))
			for _, c := range tt.classes {
				assert.True(t, hasClass(li, c), "expected class %q in %q", c, attr(li, "class"))
			}
			for _, c := range tt.absent {
				assert.False(t, hasClass(li, c), "unexpected class %q in %q", c, attr(li, "class"))
			}
		})
	}
}

func TestRenderItemDownloadButton(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, fakeFiles{"a.mbz": readyFile("a.mbz")})
	root := cart.BuildTree([]*cart.Item{{ID: 7, ModName: "page", ModText: "Page", FileID: 2, Filename: "a.mbz"}})
	doc := parse(t, mustRender(t, r, root))

	li := byID(t, doc, "block_sharing_cart-item-7")
	links := find(li, func(n *html.Node) bool { return n.Data == "a" })
	require.Len(t, links, 1)
	assert.Equal(t, "/pluginfile.php/5/user/backup/a.mbz?force=true", attr(links[0], "href"))
	assert.Equal(t, "Download file", attr(links[0], "title"))
	icon := firstChildElement(links[0], "i")
	require.NotNil(t, icon)
	assert.Equal(t, "fa fa-download", attr(icon, "class"))
	assert.Equal(t, "Download", attr(icon, "alt"))
}

func TestRenderItemMissingFileFallsBackToCopying(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, fakeFiles{})
	root := cart.BuildTree([]*cart.Item{{ID: 8, ModName: "page", ModText: "Lost", FileID: 2, Filename: "lost.mbz"}})
	doc := parse(t, mustRender(t, r, root))

	li := byID(t, doc, "block_sharing_cart-item-8")
	assert.Equal(t, "1", attr(li, "data-is-copying"))
	assert.Equal(t, "1", attr(li, "data-disable-copy"))
	assert.True(t, hasClass(li, "copying"))
	assert.Empty(t, find(li, func(n *html.Node) bool { return n.Data == "a" }))
}

func TestRenderItemLookupTimeout(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, blockingFiles{}, WithLookupTimeout(10*time.Millisecond))
	root := cart.BuildTree([]*cart.Item{{ID: 3, ModName: "page", FileID: 2, Filename: "slow.mbz"}})

	doc := parse(t, mustRender(t, r, root))
	assert.Equal(t, "1", attr(byID(t, doc, "block_sharing_cart-item-3"), "data-is-copying"))
}

func TestRenderDirectoryCourseSuffix(t *testing.T) {
	tests := []struct {
		name    string
		courses []string
		title   string
	}{
		{"single course repeated", []string{"A", "A"}, "/Dir [A]"},
		{"several courses", []string{"A", "B"}, "/Dir [various courses]"},
		{"no items", nil, "/Dir"},
		{"empty name", []string{""}, "/Dir"},
		{"empty and named", []string{"", "A"}, "/Dir [A]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRenderer(t, allCaps, nil)
			root := cart.NewDirectory("")
			dir := root.EnsureSubdir("Dir")
			for i, c := range tt.courses {
				dir.AddItem(&cart.Item{ID: int64(i + 1), CourseFullName: c, FileID: 1})
			}
			doc := parse(t, mustRender(t, r, root))

			li := byDirectory(t, doc, "/Dir")
			div := firstChildElement(li, "div")
			require.NotNil(t, div)
			assert.Equal(t, tt.title, attr(div, "title"))
		})
	}
}

func TestRenderDirectoryStateAndDepth(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, nil)
	root := cart.BuildTree([]*cart.Item{
		{ID: 1, ModName: "", Tree: "/Ready", FileID: 3},
		{ID: 2, ModName: "", Tree: "/Ready/Busy", FileID: 0},
	})
	doc := parse(t, mustRender(t, r, root))

	ready := byDirectory(t, doc, "/Ready")
	assert.Equal(t, "0", attr(ready, "data-is-copying"))
	assert.Equal(t, "directory sharing-cart-item", attr(ready, "class"))
	assert.Equal(t, "sc-indent-0", attr(firstChildElement(ready, "div"), "class"))

	list := firstChildElement(ready, "ul")
	require.NotNil(t, list)
	assert.Equal(t, "list", attr(list, "class"))
	assert.Equal(t, "display:none;", attr(list, "style"))

	busy := byDirectory(t, doc, "/Ready/Busy")
	assert.Equal(t, "1", attr(busy, "data-is-copying"))
	assert.True(t, hasClass(busy, "copying"))
	assert.True(t, hasClass(busy, "text-muted"))
	assert.Equal(t, "sc-indent-1", attr(firstChildElement(busy, "div"), "class"))
	assert.Equal(t, "Busy", textOf(instanceName(t, busy)))
	assert.Equal(t, busy.Parent, list)
}

func TestRenderItemDepth(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, nil)
	root := cart.BuildTree([]*cart.Item{
		{ID: 1, ModName: "page", Tree: "/"},
		{ID: 2, ModName: "page", Tree: "/A/B"},
	})
	doc := parse(t, mustRender(t, r, root))

	assert.Equal(t, "sc-indent-0", attr(firstChildElement(byID(t, doc, "block_sharing_cart-item-1"), "div"), "class"))
	assert.Equal(t, "sc-indent-2", attr(firstChildElement(byID(t, doc, "block_sharing_cart-item-2"), "div"), "class"))
}

func TestRenderItemTitle(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, nil)
	root := cart.BuildTree([]*cart.Item{
		{ID: 1, ModName: "page", ModText: "<b>Bold</b> &amp; <i>more</i>", CourseFullName: "Physics"},
		{ID: 2, ModName: "page", ModText: "Plain"},
	})
	doc := parse(t, mustRender(t, r, root))

	div := firstChildElement(byID(t, doc, "block_sharing_cart-item-1"), "div")
	assert.Equal(t, "Bold & more [Physics]", attr(div, "title"))
	assert.Equal(t, "Bold & more", textOf(instanceName(t, div)))

	div = firstChildElement(byID(t, doc, "block_sharing_cart-item-2"), "div")
	assert.Equal(t, "Plain", attr(div, "title"))
}

func TestRenderItemTruncation(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, nil)
	root := cart.BuildTree([]*cart.Item{
		{ID: 1, ModName: "page", ModText: strings.Repeat("a", 200)},
		{ID: 2, ModName: "page", ModText: strings.Repeat("€", 100)},
		{ID: 3, ModName: "page", ModText: strings.Repeat("b", 96)},
	})
	doc := parse(t, mustRender(t, r, root))

	assert.Equal(t, strings.Repeat("a", 97)+"...", textOf(instanceName(t, byID(t, doc, "block_sharing_cart-item-1"))))
	assert.Equal(t, strings.Repeat("€", 97)+"...", textOf(instanceName(t, byID(t, doc, "block_sharing_cart-item-2"))))
	assert.Equal(t, strings.Repeat("b", 96), textOf(instanceName(t, byID(t, doc, "block_sharing_cart-item-3"))))
}

func TestRenderLabelReplacesImages(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, nil)
	root := cart.BuildTree([]*cart.Item{
		{ID: 1, ModName: "label", ModText: "<p>hi</p><img src=x>"},
		{ID: 2, ModName: "page", ModText: "<p>kept</p>"},
		{ID: 3, ModName: "label", ModText: "<IMG src=x>upper"},
	})
	out := mustRender(t, r, root)
	assert.NotContains(t, strings.ToLower(out), "<img")
	assert.Equal(t, "[image]upper", textOf(instanceName(t, byID(t, parse(t, out), "block_sharing_cart-item-3"))))

	doc := parse(t, out)
	label := instanceName(t, byID(t, doc, "block_sharing_cart-item-1"))
	assert.Equal(t, "hi[image]", textOf(label))
	assert.Nil(t, firstChildElement(label, "p"))

	page := instanceName(t, byID(t, doc, "block_sharing_cart-item-2"))
	assert.NotNil(t, firstChildElement(page, "p"))
}

func TestRenderTreeCapabilityAlert(t *testing.T) {
	tests := []struct {
		name       string
		caps       capability.Checker
		alerts     int
		actions    string
		wantPlural bool
	}{
		{"all granted", allCaps, 0, "", false},
		{"one missing", capability.NewSet(capability.RestoreCourse), 1, "copy", false},
		{"both missing", capability.NewSet(), 1, "restore,copy", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRenderer(t, tt.caps, nil)
			out := mustRender(t, r, cart.NewDirectory(""))
			assert.Equal(t, tt.alerts, strings.Count(out, `id="alert-disallow"`))
			if tt.alerts == 0 {
				assert.Equal(t, `<ul class="tree list"></ul>`, out)
				return
			}
			doc := parse(t, out)
			alert := byID(t, doc, "alert-disallow")
			assert.Equal(t, "alert alert-danger", attr(alert, "class"))
			assert.Equal(t, "alert", attr(alert, "role"))
			assert.Equal(t, tt.actions, attr(alert, "data-disallowed-actions"))
			msg := textOf(alert)
			if tt.wantPlural {
				assert.Contains(t, msg, "following capabilities")
				assert.Contains(t, msg, capability.RestoreCourse+", "+capability.RestoreActivity)
			} else {
				assert.Contains(t, msg, "following capability,")
				assert.Contains(t, msg, capability.RestoreActivity)
			}
		})
	}
}

func TestRenderTreeKeepsNodeOrder(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, nil)
	root := cart.BuildTree([]*cart.Item{
		{ID: 1, ModName: "page", Tree: "/Zeta"},
		{ID: 2, ModName: "page", Tree: "/"},
		{ID: 3, ModName: "page", Tree: "/Alpha"},
		{ID: 4, ModName: "page", Tree: "/"},
	})
	out := mustRender(t, r, root)

	positions := []int{
		strings.Index(out, `directory-path="/Zeta"`),
		strings.Index(out, "block_sharing_cart-item-1"),
		strings.Index(out, "block_sharing_cart-item-2"),
		strings.Index(out, "block_sharing_cart-item-4"),
		strings.Index(out, `directory-path="/Alpha"`),
		strings.Index(out, "block_sharing_cart-item-3"),
	}
	for i := 1; i < len(positions); i++ {
		require.NotEqual(t, -1, positions[i])
		assert.Less(t, positions[i-1], positions[i])
	}
}

func TestRenderTreeEscapesNamesAndPaths(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, nil)
	root := cart.NewDirectory("")
	root.EnsureSubdir(`<script>"x"&`).AddItem(&cart.Item{CourseFullName: `C&"D`, FileID: 1})

	out := mustRender(t, r, root)
	assert.NotContains(t, out, "<script>")

	doc := parse(t, out)
	li := byDirectory(t, doc, `/<script>"x"&`)
	assert.Equal(t, `<script>"x"&`, textOf(instanceName(t, li)))
	assert.Equal(t, `/<script>"x"& [C&"D]`, attr(firstChildElement(li, "div"), "title"))
}

func TestRenderTreeDirectoryFromLiteral(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, fakeFiles{"c.mbz": readyFile("c.mbz")})
	root := &cart.Directory{Children: []cart.Node{
		&cart.Directory{Name: "Dir", Children: []cart.Node{
			&cart.Leaf{Items: []*cart.Item{
				{ID: 1, ModName: "page", CourseFullName: "A"},
				{ID: 2, ModName: "page", CourseFullName: "B"},
			}},
			&cart.Leaf{Items: []*cart.Item{
				{ID: 3, ModName: "page", CourseFullName: "C", FileID: 4, Filename: "c.mbz"},
			}},
		}},
		&cart.Directory{Name: "Ready", Children: []cart.Node{
			&cart.Leaf{Items: []*cart.Item{{ID: 4, ModName: "page", CourseFullName: "C", FileID: 4, Filename: "c.mbz"}}},
		}},
	}}

	doc := parse(t, mustRender(t, r, root))

	dir := byDirectory(t, doc, "/Dir")
	assert.Equal(t, "1", attr(dir, "data-is-copying"))
	assert.True(t, hasClass(dir, "copying"))
	assert.Equal(t, "/Dir [various courses]", attr(firstChildElement(dir, "div"), "title"))
	assert.Equal(t, "Dir", textOf(instanceName(t, dir)))
	byID(t, doc, "block_sharing_cart-item-3")

	ready := byDirectory(t, doc, "/Ready")
	assert.Equal(t, "0", attr(ready, "data-is-copying"))
	assert.Equal(t, "/Ready [C]", attr(firstChildElement(ready, "div"), "title"))
}

func TestRenderTreeDirectoryLabelIsLastSegment(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, nil)
	root := &cart.Directory{Children: []cart.Node{
		&cart.Directory{Name: "Course/Week 1", Children: []cart.Node{
			&cart.Leaf{Items: []*cart.Item{{ID: 1, ModName: "page"}}},
		}},
	}}

	doc := parse(t, mustRender(t, r, root))
	assert.Equal(t, "Week 1", textOf(instanceName(t, byDirectory(t, doc, "/Course/Week 1"))))
}

func TestRenderTreeCustomIDPrefix(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, nil, WithIDPrefix("cart"))
	out := mustRender(t, r, cart.BuildTree([]*cart.Item{{ID: 12, ModName: "page"}}))
	assert.Contains(t, out, `id="cart-item-12"`)
}

func TestRenderTreeMalformed(t *testing.T) {
	r, _ := newTestRenderer(t, allCaps, nil)

	_, err := r.RenderTree(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMalformedTree)

	root := &cart.Directory{Children: []cart.Node{(*cart.Directory)(nil)}}
	_, err = r.RenderTree(context.Background(), root)
	assert.ErrorIs(t, err, ErrMalformedTree)

	root = &cart.Directory{Children: []cart.Node{nil}}
	_, err = r.RenderTree(context.Background(), root)
	assert.ErrorIs(t, err, ErrMalformedTree)
}

func TestRenderTreeMissingStringIsAnError(t *testing.T) {
	r := New(Deps{
		Capabilities: allCaps,
		Strings:      mapStrings{"download": "Download", "downloadfile": "Download file"},
		Files:        fakeFiles{},
		Icons:        &fakeIcons{},
	})
	root := cart.NewDirectory("")
	dir := root.EnsureSubdir("Dir")
	dir.AddItem(&cart.Item{CourseFullName: "A", FileID: 1})
	dir.AddItem(&cart.Item{CourseFullName: "B", FileID: 1})

	_, err := r.RenderTree(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variouscourse")
}

func TestRenderModIconResolution(t *testing.T) {
	r, icons := newTestRenderer(t, allCaps, nil)

	tests := []struct {
		name string
		item cart.Item
		call string
	}{
		{"module scoped", cart.Item{ModName: "page", ModIcon: "mod/forum/icon"}, "module:forum/icon"},
		{"generic", cart.Item{ModName: "page", ModIcon: "customicon"}, "generic:customicon"},
		{"default", cart.Item{ModName: "page"}, "default:page"},
		{"broken module hint", cart.Item{ModName: "quiz", ModIcon: "mod/forum"}, "default:quiz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			icons.calls = nil
			markup, err := r.RenderModIcon(&tt.item)
			require.NoError(t, err)
			assert.Contains(t, markup, "fakeicon")
			assert.Equal(t, []string{tt.call}, icons.calls)
		})
	}
}

func TestRenderModIconUninstalledPlugin(t *testing.T) {
	r, icons := newTestRenderer(t, allCaps, nil)

	markup, err := r.RenderModIcon(&cart.Item{ModName: "hvp", ModIcon: "mod/hvp/icon", UninstalledPlugin: true})
	require.NoError(t, err)
	assert.Empty(t, icons.calls)
	assert.Contains(t, markup, `class="icon fa fa-fw fa-exclamation text-danger align-self-center"`)
	assert.Contains(t, markup, "mod_hvp")
}
