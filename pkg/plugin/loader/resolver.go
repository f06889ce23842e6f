package loader

import (
	"sync"

	"github.com/linjianyan0229/linbot2/pkg/errors"
	"github.com/linjianyan0229/linbot2/pkg/plugin"
)

// Resolver orders plugins so dependencies start before their dependents
// and rejects missing or cyclic dependency graphs.
type Resolver struct {
	mu         sync.RWMutex
	registered map[string]plugin.Info
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{registered: make(map[string]plugin.Info)}
}

// Register adds a plugin's metadata to the graph.
func (r *Resolver) Register(info plugin.Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[info.Name] = info
}

// Unregister removes a plugin from the graph.
func (r *Resolver) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, name)
}

// CheckDependencies verifies every direct dependency of info is
// registered.
func (r *Resolver) CheckDependencies(info plugin.Info) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, dep := range info.Dependencies {
		if _, ok := r.registered[dep]; !ok {
			return errors.ErrMissingDependency(info.Name, dep)
		}
	}
	return nil
}

// Resolve returns the transitive dependency closure of info, dependencies
// before dependents, each name once in discovery order. The plugin itself
// is not included.
func (r *Resolver) Resolve(info plugin.Info) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var resolved []string
	visiting := make(map[string]bool)
	if err := r.resolve(info, &resolved, visiting); err != nil {
		return nil, err
	}
	return resolved, nil
}

func (r *Resolver) resolve(info plugin.Info, resolved *[]string, visiting map[string]bool) error {
	if visiting[info.Name] {
		return errors.ErrCyclicDependency(info.Name)
	}
	visiting[info.Name] = true
	defer delete(visiting, info.Name)

	for _, dep := range info.Dependencies {
		depInfo, ok := r.registered[dep]
		if !ok {
			return errors.ErrMissingDependency(info.Name, dep)
		}
		if err := r.resolve(depInfo, resolved, visiting); err != nil {
			return err
		}
		if !containsString(*resolved, dep) {
			*resolved = append(*resolved, dep)
		}
	}
	return nil
}

// Tree builds the full dependency tree rooted at name.
func (r *Resolver) Tree(name string) (*DependencyTree, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree(name, make(map[string]bool))
}

func (r *Resolver) tree(name string, visiting map[string]bool) (*DependencyTree, error) {
	info, ok := r.registered[name]
	if !ok {
		return nil, errors.ErrNotFound("plugin " + name)
	}
	if visiting[name] {
		return nil, errors.ErrCyclicDependency(name)
	}
	visiting[name] = true
	defer delete(visiting, name)

	node := &DependencyTree{Name: name}
	for _, dep := range info.Dependencies {
		child, err := r.tree(dep, visiting)
		if err != nil {
			return nil, err
		}
		node.Dependencies = append(node.Dependencies, child)
	}
	return node, nil
}

// DependencyTree is the dependency graph rooted at one plugin.
type DependencyTree struct {
	Name         string            `json:"name"`
	Dependencies []*DependencyTree `json:"dependencies,omitempty"`
}

// Flatten lists every dependency below the root once, in discovery order.
func (t *DependencyTree) Flatten() []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(*DependencyTree)
	walk = func(node *DependencyTree) {
		for _, dep := range node.Dependencies {
			if !seen[dep.Name] {
				seen[dep.Name] = true
				out = append(out, dep.Name)
			}
			walk(dep)
		}
	}
	walk(t)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
