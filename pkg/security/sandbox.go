// Package security implements the plugin sandbox: filesystem and network
// access control plus per-plugin resource accounting and limits.
package security

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/linjianyan0229/linbot2/pkg/config"
	"github.com/linjianyan0229/linbot2/pkg/errors"
	"github.com/linjianyan0229/linbot2/pkg/logger"
)

// FileOp is the kind of filesystem access being requested.
type FileOp string

const (
	OpRead    FileOp = "read"
	OpWrite   FileOp = "write"
	OpExecute FileOp = "execute"
	OpDelete  FileOp = "delete"
	OpCreate  FileOp = "create"
)

// Sandbox gates plugin filesystem, network and resource access according
// to the security configuration. When the sandbox is disabled every check
// passes.
type Sandbox struct {
	cfg     config.Security
	fs      *fsAccessControl
	network *networkAccessControl
	monitor *ResourceMonitor
	logger  logger.Logger
}

// NewSandbox creates a sandbox for the given security configuration.
// pluginsDir anchors the per-plugin deletion rule.
func NewSandbox(cfg config.Security, pluginsDir string, log logger.Logger) *Sandbox {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Sandbox{
		cfg:     cfg,
		fs:      newFSAccessControl(cfg, pluginsDir),
		network: newNetworkAccessControl(cfg),
		monitor: NewResourceMonitor(cfg),
		logger:  log.Named("sandbox"),
	}
}

// Monitor exposes the resource monitor.
func (s *Sandbox) Monitor() *ResourceMonitor {
	return s.monitor
}

// CheckFileAccess decides whether plugin may perform op on path.
func (s *Sandbox) CheckFileAccess(plugin, path string, op FileOp) error {
	if !s.cfg.EnableSandbox {
		return nil
	}
	if err := s.fs.check(plugin, path, op); err != nil {
		s.logger.Warn("file access denied",
			logger.String("plugin", plugin),
			logger.String("path", path),
			logger.String("op", string(op)))
		return err
	}
	return nil
}

// CheckNetworkAccess decides whether plugin may connect to domain:port.
func (s *Sandbox) CheckNetworkAccess(plugin, domain string, port int) error {
	if !s.cfg.EnableSandbox {
		return nil
	}
	if err := s.network.check(plugin, domain, port); err != nil {
		s.logger.Warn("network access denied",
			logger.String("plugin", plugin),
			logger.String("domain", domain),
			logger.Int("port", port))
		return err
	}
	return nil
}

// CheckResourceLimits reports whether plugin is within its resource
// ceilings.
func (s *Sandbox) CheckResourceLimits(plugin string) error {
	if !s.cfg.EnableSandbox {
		return nil
	}
	return s.monitor.CheckLimits(plugin)
}

type fsAccessControl struct {
	allowed    []string
	denied     []string
	pluginsDir string
}

func newFSAccessControl(cfg config.Security, pluginsDir string) *fsAccessControl {
	return &fsAccessControl{
		allowed:    cleanPaths(cfg.AllowedPaths),
		denied:     cleanPaths(cfg.DeniedPaths),
		pluginsDir: filepath.Clean(pluginsDir),
	}
}

func cleanPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			out = append(out, filepath.Clean(p))
		}
	}
	return out
}

// check canonicalizes the path, applies the deny list, then the allow
// list, then the operation-specific rules. Deny wins over allow.
func (c *fsAccessControl) check(plugin, path string, op FileOp) error {
	canonical := filepath.Clean(path)

	for _, d := range c.denied {
		if underPath(canonical, d) {
			return errors.ErrPermissionDenied(fmt.Sprintf("plugin %s denied access to path %s", plugin, path))
		}
	}

	if len(c.allowed) > 0 {
		ok := false
		for _, a := range c.allowed {
			if underPath(canonical, a) {
				ok = true
				break
			}
		}
		if !ok {
			return errors.ErrPermissionDenied(fmt.Sprintf("plugin %s has no access to path %s", plugin, path))
		}
	}

	switch op {
	case OpExecute:
		// No plugin may execute files.
		return errors.ErrPermissionDenied(fmt.Sprintf("plugin %s may not execute %s", plugin, path))
	case OpDelete:
		// Deletion is confined to the plugin's own data directory.
		own := filepath.Join(c.pluginsDir, plugin)
		if !underPath(canonical, own) || canonical == own {
			return errors.ErrPermissionDenied(fmt.Sprintf("plugin %s may not delete %s", plugin, path))
		}
	}
	return nil
}

// underPath reports whether p equals or sits beneath prefix as a path
// boundary, not a raw string prefix.
func underPath(p, prefix string) bool {
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+string(filepath.Separator))
}

type networkAccessControl struct {
	allowNetwork   bool
	allowedDomains []string
}

// forbiddenPorts are never reachable regardless of configuration.
var forbiddenPorts = map[int]bool{
	22:  true, // ssh
	23:  true, // telnet
	25:  true, // smtp
	53:  true, // dns
	110: true, // pop3
	143: true, // imap
	993: true, // imaps
	995: true, // pop3s
}

func newNetworkAccessControl(cfg config.Security) *networkAccessControl {
	return &networkAccessControl{
		allowNetwork:   cfg.AllowNetwork,
		allowedDomains: cfg.AllowedDomains,
	}
}

func (c *networkAccessControl) check(plugin, domain string, port int) error {
	if !c.allowNetwork {
		return errors.ErrPermissionDenied(fmt.Sprintf("plugin %s denied network access", plugin))
	}

	if len(c.allowedDomains) > 0 {
		ok := false
		for _, d := range c.allowedDomains {
			if domain == d || strings.HasSuffix(domain, "."+d) {
				ok = true
				break
			}
		}
		if !ok {
			return errors.ErrPermissionDenied(fmt.Sprintf("plugin %s has no access to domain %s", plugin, domain))
		}
	}

	if forbiddenPorts[port] || port <= 1024 {
		return errors.ErrPermissionDenied(fmt.Sprintf("plugin %s has no access to port %d", plugin, port))
	}
	return nil
}
