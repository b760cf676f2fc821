package cart

// Node is one entry of a directory: either a nested *Directory or the directory's
// own *Leaf bucket of items. The set of implementations is closed.
type Node interface {
	node()
}

// Directory is a grouping level of the cart tree (course, section, ...).
// Children keep the order in which they were first added. All accessors read
// Children, so a Directory literal behaves the same as one built with AddItem.
type Directory struct {
	Name     string
	Children []Node
}

// Leaf holds the items that live directly in a directory.
type Leaf struct {
	Items []*Item
}

func (*Directory) node() {}
func (*Leaf) node()      {}

// NewDirectory returns an empty directory with the given name ("" for root).
func NewDirectory(name string) *Directory {
	return &Directory{Name: name}
}

// Subdir returns the first child directory called name, or nil.
func (d *Directory) Subdir(name string) *Directory {
	for _, c := range d.Children {
		if sub, ok := c.(*Directory); ok && sub != nil && sub.Name == name {
			return sub
		}
	}
	return nil
}

// Items returns the items of every leaf bucket directly under d, in child order.
func (d *Directory) Items() []*Item {
	var out []*Item
	for _, c := range d.Children {
		if l, ok := c.(*Leaf); ok && l != nil {
			out = append(out, l.Items...)
		}
	}
	return out
}

// EnsureSubdir returns the child directory called name, appending it when missing.
func (d *Directory) EnsureSubdir(name string) *Directory {
	if sub := d.Subdir(name); sub != nil {
		return sub
	}
	sub := NewDirectory(name)
	d.Children = append(d.Children, sub)
	return sub
}

// AddItem appends it to the directory's first leaf bucket, creating the bucket
// in child order on first use.
func (d *Directory) AddItem(it *Item) {
	for _, c := range d.Children {
		if l, ok := c.(*Leaf); ok && l != nil {
			l.Items = append(l.Items, it)
			return
		}
	}
	d.Children = append(d.Children, &Leaf{Items: []*Item{it}})
}

// Builder assembles a cart tree from flat items, filing each one under its Tree path.
type Builder struct {
	root *Directory
}

func NewBuilder() *Builder {
	return &Builder{root: NewDirectory("")}
}

// Add files it under the directory named by it.Tree.
func (b *Builder) Add(it *Item) {
	dir := b.root
	for _, seg := range Segments(it.Tree) {
		dir = dir.EnsureSubdir(seg)
	}
	dir.AddItem(it)
}

// Root returns the tree built so far.
func (b *Builder) Root() *Directory {
	return b.root
}

// BuildTree files items in the given order and returns the root directory.
func BuildTree(items []*Item) *Directory {
	b := NewBuilder()
	for _, it := range items {
		b.Add(it)
	}
	return b.Root()
}
