// Package loader discovers plugin artifacts on disk, loads native plugins
// and resolves inter-plugin dependencies.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	goplugin "plugin"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/linjianyan0229/linbot2/pkg/errors"
	"github.com/linjianyan0229/linbot2/pkg/logger"
	"github.com/linjianyan0229/linbot2/pkg/plugin"
)

// FactorySymbol is the exported symbol a native plugin must provide.
const FactorySymbol = "NewPlugin"

// Factory is the required type of the FactorySymbol symbol.
type Factory = func() plugin.Plugin

// Manifest is the plugin.yaml file describing a directory artifact.
type Manifest struct {
	Info plugin.Info `yaml:"info"`
	// Type selects the runtime: "native" for shared objects. Script
	// runtimes are declared but not implemented.
	Type string `yaml:"type"`
	// EntryPoint is the artifact relative to the plugin directory.
	EntryPoint string `yaml:"entry_point"`
}

// Loader opens plugin artifacts and produces plugin instances.
type Loader struct {
	logger logger.Logger
}

// New creates a loader.
func New(log logger.Logger) *Loader {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Loader{logger: log.Named("loader")}
}

// sharedObjectExt is the platform's shared library suffix.
func sharedObjectExt() string {
	switch runtime.GOOS {
	case "windows":
		return ".dll"
	case "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}

// Scan lists the plugin artifacts directly under dir: shared objects for
// this platform and subdirectories containing a plugin.yaml manifest. A
// missing directory yields an empty list.
func (l *Loader) Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.ErrLoadError("scan plugins directory "+dir, err)
	}

	var artifacts []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if _, err := os.Stat(filepath.Join(path, "plugin.yaml")); err == nil {
				artifacts = append(artifacts, path)
			}
			continue
		}
		if filepath.Ext(e.Name()) == sharedObjectExt() {
			artifacts = append(artifacts, path)
		}
	}
	return artifacts, nil
}

// Load opens the artifact at path and returns the plugin it provides.
func (l *Loader) Load(path string) (plugin.Plugin, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.ErrLoadError("plugin artifact "+path, err)
	}
	if fi.IsDir() {
		return l.loadFromManifest(path)
	}
	return l.loadNative(path)
}

// loadNative opens a shared object and calls its factory.
func (l *Loader) loadNative(path string) (plugin.Plugin, error) {
	if filepath.Ext(path) != sharedObjectExt() {
		return nil, errors.ErrLoadError(fmt.Sprintf("artifact %s is not a %s shared object", path, sharedObjectExt()), nil)
	}

	lib, err := goplugin.Open(path)
	if err != nil {
		return nil, errors.ErrLoadError("open shared object "+path, err)
	}

	sym, err := lib.Lookup(FactorySymbol)
	if err != nil {
		return nil, errors.ErrLoadError(fmt.Sprintf("artifact %s does not export %s", path, FactorySymbol), err)
	}

	factory, ok := sym.(Factory)
	if !ok {
		return nil, errors.ErrLoadError(fmt.Sprintf("symbol %s in %s has wrong type", FactorySymbol, path), nil)
	}

	p := factory()
	if p == nil {
		return nil, errors.ErrLoadError(fmt.Sprintf("factory in %s returned nil", path), nil)
	}

	l.logger.Info("plugin loaded",
		logger.String("path", path),
		logger.String("plugin", p.Info().Name))
	return p, nil
}

// loadFromManifest loads a directory artifact via its plugin.yaml.
func (l *Loader) loadFromManifest(dir string) (plugin.Plugin, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	switch manifest.Type {
	case "native", "":
		entry := manifest.EntryPoint
		if entry == "" {
			entry = manifest.Info.Name + sharedObjectExt()
		}
		return l.loadNative(filepath.Join(dir, entry))
	case "lua", "python", "javascript":
		return nil, errors.ErrLoadError(fmt.Sprintf("plugin type %q is not yet supported", manifest.Type), nil)
	default:
		return nil, errors.ErrLoadError(fmt.Sprintf("unknown plugin type %q in %s", manifest.Type, dir), nil)
	}
}

// ReadManifest parses and validates the plugin.yaml inside dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "plugin.yaml"))
	if err != nil {
		return nil, errors.ErrLoadError("read manifest in "+dir, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.ErrLoadError("parse manifest in "+dir, err)
	}
	if err := m.Info.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ValidateArtifact checks that path points at a loadable artifact without
// opening it: correct shared-object extension for files, a manifest for
// directories.
func ValidateArtifact(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return errors.ErrLoadError("plugin artifact "+path, err)
	}

	if fi.IsDir() {
		_, err := ReadManifest(path)
		return err
	}
	if filepath.Ext(path) != sharedObjectExt() {
		return errors.ErrLoadError(fmt.Sprintf("artifact %s has invalid extension, want %s", path, sharedObjectExt()), nil)
	}
	return nil
}
