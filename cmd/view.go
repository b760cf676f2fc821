package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/sharingcart/i18n"
	"github.com/mordilloSan/sharingcart/render"
	"github.com/mordilloSan/sharingcart/site"
	"github.com/mordilloSan/sharingcart/storage"
)

// cartView renders a user's cart from the store.
type cartView struct {
	store   *storage.Store
	strings *i18n.Table
	site    *site.Site
	timeout time.Duration
}

// Render loads the user's grants and items and renders their tree.
func (v *cartView) Render(ctx context.Context, userID int64) (string, error) {
	caps, err := v.store.Capabilities(ctx, userID)
	if err != nil {
		return "", err
	}
	root, err := v.store.LoadTree(ctx, userID)
	if err != nil {
		return "", err
	}

	r := render.New(render.Deps{
		Capabilities: caps,
		Strings:      v.strings,
		Files:        v.store,
		URLs:         v.site,
		Icons:        v.site,
	}, render.WithLookupTimeout(v.timeout))

	start := time.Now()
	out, err := r.RenderTree(ctx, root)
	if err != nil {
		return "", fmt.Errorf("render cart of user %d: %w", userID, err)
	}
	logger.Debugf("Rendered cart of user %d in %v", userID, time.Since(start).Truncate(time.Microsecond))
	return out, nil
}

// RenderOnce prints one user's cart and exits; used by the render command.
func RenderOnce(ctx context.Context, cfg DaemonConfig, userID int64, w io.Writer) error {
	store, err := storage.NewStore(coalesce(cfg.DBPath, defaultDBPath))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("Failed to close database: %v", err)
		}
	}()

	view, err := newCartView(store, cfg)
	if err != nil {
		return err
	}
	out, err := view.Render(ctx, userID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// UpdateGrants grants (or revokes) capabilities for a user; used by the grant command.
func UpdateGrants(ctx context.Context, dbPath string, userID int64, revoke bool, capabilities []string) error {
	store, err := storage.NewStore(coalesce(dbPath, defaultDBPath))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("Failed to close database: %v", err)
		}
	}()

	if revoke {
		err = store.Revoke(ctx, userID, capabilities...)
	} else {
		err = store.Grant(ctx, userID, capabilities...)
	}
	if err != nil {
		return err
	}

	set, err := store.Capabilities(ctx, userID)
	if err != nil {
		return err
	}
	logger.Infof("User %d capabilities: %v", userID, set.Names())
	return nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
