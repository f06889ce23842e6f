// Package plugin defines the plugin contract: metadata, lifecycle hooks,
// event handlers and the runtime context handed to each plugin.
package plugin

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/linjianyan0229/linbot2/pkg/errors"
)

// supportedAPIVersions are the plugin API versions this runtime accepts.
var supportedAPIVersions = map[string]bool{
	"1.0.0": true,
	"1.1.0": true,
}

// Info is the metadata a plugin declares about itself.
type Info struct {
	Name        string   `yaml:"name" json:"name"`
	Version     string   `yaml:"version" json:"version"`
	Author      string   `yaml:"author" json:"author"`
	Description string   `yaml:"description" json:"description"`
	Homepage    string   `yaml:"homepage,omitempty" json:"homepage,omitempty"`
	// Dependencies are the names of plugins that must be running first.
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	APIVersion   string   `yaml:"api_version" json:"api_version"`
	Tags         []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	// MinSystemVersion is the lowest host version the plugin accepts.
	MinSystemVersion string `yaml:"min_system_version,omitempty" json:"min_system_version,omitempty"`
}

// DefaultInfo fills in placeholder metadata.
func DefaultInfo() Info {
	return Info{
		Name:        "unknown",
		Version:     "0.1.0",
		Author:      "unknown",
		Description: "no description",
		APIVersion:  "1.0.0",
	}
}

// Validate checks the declared metadata: non-empty name, a version of
// exactly three numeric dot-separated components, and a supported API
// version.
func (i Info) Validate() error {
	if i.Name == "" {
		return errors.ErrLoadError("plugin name must not be empty", nil)
	}
	if err := checkVersion(i.Version); err != nil {
		return errors.ErrLoadError(fmt.Sprintf("plugin %s has invalid version %q", i.Name, i.Version), err)
	}
	if !supportedAPIVersions[i.APIVersion] {
		return errors.ErrLoadError(fmt.Sprintf("plugin %s requires unsupported api version %q", i.Name, i.APIVersion), nil)
	}
	if i.MinSystemVersion != "" {
		if err := checkVersion(i.MinSystemVersion); err != nil {
			return errors.ErrLoadError(fmt.Sprintf("plugin %s has invalid min_system_version %q", i.Name, i.MinSystemVersion), err)
		}
	}
	return nil
}

// checkVersion accepts only major.minor.patch with all three components
// numeric. StrictNewVersion rejects partial versions; prerelease and build
// metadata are rejected here.
func checkVersion(v string) error {
	ver, err := semver.StrictNewVersion(v)
	if err != nil {
		return err
	}
	if ver.Prerelease() != "" || ver.Metadata() != "" {
		return fmt.Errorf("version must be exactly major.minor.patch")
	}
	return nil
}

// CompatibleWith reports whether the host version satisfies the plugin's
// minimum system version, if any.
func (i Info) CompatibleWith(systemVersion string) bool {
	if i.MinSystemVersion == "" {
		return true
	}
	sys, err := semver.NewVersion(systemVersion)
	if err != nil {
		return false
	}
	min, err := semver.NewVersion(i.MinSystemVersion)
	if err != nil {
		return false
	}
	return !sys.LessThan(min)
}
