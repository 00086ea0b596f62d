package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Override is the YAML document operators ship to adjust entitlements
// without a deploy. Listed keys replace the compiled-in entry for that key;
// unlisted keys keep their compiled-in values.
type Override struct {
	Version string              `yaml:"version"`
	Tiers   map[string][]string `yaml:"tiers"`
	Roles   map[string][]string `yaml:"roles"`
}

// Load builds a catalog from the compiled-in tables with the override file
// at path applied on top.
func Load(path string) (*Catalog, error) {
	c := Default()
	if err := c.ApplyFile(path); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyFile reads an override document and applies it to the catalog
// in place. The swap is atomic with respect to concurrent lookups.
func (c *Catalog) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog override: %w", err)
	}

	var ov Override
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return fmt.Errorf("failed to parse catalog override: %w", err)
	}

	tiers := copyTable(tierEntitlements)
	for tier, perms := range ov.Tiers {
		tiers[tier] = append([]string(nil), perms...)
	}
	roles := copyTable(roleEntitlements)
	for role, perms := range ov.Roles {
		roles[role] = append([]string(nil), perms...)
	}

	version := ov.Version
	if version == "" {
		version = Version + "+override"
	}

	c.mu.Lock()
	c.version = version
	c.tiers = tiers
	c.roles = roles
	c.mu.Unlock()
	return nil
}

// Watch reloads the override file whenever it is rewritten, until ctx is
// cancelled. onReload is invoked after every reload attempt with the reload
// error, nil on success; pass nil when no notification is needed. A parse
// error leaves the previously loaded tables in effect.
func (c *Catalog) Watch(ctx context.Context, path string, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}

	// Watch the directory: editors and config maps replace the file, which
	// drops a watch placed on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				err := c.ApplyFile(path)
				if onReload != nil {
					onReload(err)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
