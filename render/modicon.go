package render

import (
	"strings"

	"github.com/mordilloSan/sharingcart/cart"
)

const moduleIconPrefix = "mod/"

// RenderModIcon returns the icon markup of an item. Items whose plugin is gone get
// a warning icon; otherwise the icon hint decides between a module icon
// ("mod/<module>/<icon>"), a core icon, or the module's default icon.
func (r *Renderer) RenderModIcon(it *cart.Item) (string, error) {
	if it.UninstalledPlugin {
		title, err := r.localize("uninstalled_plugin_warning_title", "mod_"+it.ModName)
		if err != nil {
			return "", err
		}
		return renderString(elem("i",
			"class", "icon fa fa-fw fa-exclamation text-danger align-self-center",
			"title", title,
		))
	}

	if r.deps.Icons == nil {
		return "", nil
	}
	if it.ModIcon == "" {
		return r.deps.Icons.DefaultIcon(it.ModName), nil
	}
	if rest, ok := strings.CutPrefix(it.ModIcon, moduleIconPrefix); ok {
		module, icon, found := strings.Cut(rest, "/")
		if !found || module == "" || icon == "" {
			return r.deps.Icons.DefaultIcon(it.ModName), nil
		}
		return r.deps.Icons.ModuleIcon(module, icon), nil
	}
	return r.deps.Icons.GenericIcon(it.ModIcon), nil
}
