package module

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"compatsuite/internal/logging"

	"golang.org/x/sync/errgroup"
)

// ConfigExt is the extension of installed module configs.
const ConfigExt = ".config"

// Module is one module config expanded for one ABI.
type Module struct {
	ID     string
	ABI    string
	Name   string
	Config *Config
}

// ID returns the module ID "<abi> <name>".
func ID(abi, name string) string {
	return abi + " " + name
}

// Loader reads module configs from a directory.
type Loader struct {
	// Concurrency bounds the number of configs parsed at once. Zero or less
	// means unbounded.
	Concurrency int
}

// LoadDir parses every *.config file in dir, keeps those tagged with
// suiteTag (all of them when suiteTag is empty) and expands each across abis.
// Modules are returned sorted by ID.
func (l *Loader) LoadDir(ctx context.Context, dir string, abis []string, suiteTag string) ([]*Module, error) {
	timer := logging.StartTimer(logging.CategoryModule, "LoadDir")
	defer timer.Stop()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tests dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ConfigExt) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	configs := make([]*Config, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if l.Concurrency > 0 {
		g.SetLimit(l.Concurrency)
	}
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cfg, err := parseFile(filepath.Join(dir, file))
			if err != nil {
				return err
			}
			configs[i] = cfg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var modules []*Module
	for _, cfg := range configs {
		if suiteTag != "" && !cfg.HasSuiteTag(suiteTag) {
			logging.ModuleDebug("skipping %s: not tagged %q", cfg.Name, suiteTag)
			continue
		}
		for _, abi := range abis {
			modules = append(modules, &Module{
				ID:     ID(abi, cfg.Name),
				ABI:    abi,
				Name:   cfg.Name,
				Config: cfg,
			})
		}
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].ID < modules[j].ID })

	logging.Module("loaded %d configs from %s (%d modules across %d abis)",
		len(configs), dir, len(modules), len(abis))
	return modules, nil
}

func parseFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ParseConfig(strings.TrimSuffix(filepath.Base(path), ConfigExt), f)
}
