package registry

// Validator is the acceptance check of a virtual module. It receives the
// fully merged candidate sub-document and returns nil to accept the change
// or an error describing the rejection.
type Validator func(value any) error

// Registry holds the module specs known to the coordinator, keyed by
// unique module name, along with the validators of virtual modules.
//
// The coordinator serializes all access on its dispatch goroutine, so the
// registry carries no locking of its own.
type Registry struct {
	specs      map[string]*ModuleSpec
	validators map[string]Validator
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		specs:      make(map[string]*ModuleSpec),
		validators: make(map[string]Validator),
	}
}

// Register inserts or replaces the spec under its module name. The last
// registration wins.
func (r *Registry) Register(spec *ModuleSpec) {
	r.specs[spec.Name()] = spec
}

// RegisterVirtual registers a spec together with the in-process validator
// that decides acceptance for the module's configuration changes.
func (r *Registry) RegisterVirtual(spec *ModuleSpec, check Validator) {
	r.specs[spec.Name()] = spec
	r.validators[spec.Name()] = check
}

// Unregister removes the named module's spec and, when present, its
// validator. Removing an unknown module is a no-op.
func (r *Registry) Unregister(name string) {
	delete(r.specs, name)
	delete(r.validators, name)
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	return len(r.specs)
}

// Has reports whether a spec is registered under the given name.
func (r *Registry) Has(name string) bool {
	_, ok := r.specs[name]
	return ok
}

// Validator returns the validator of a virtual module. The second return
// is false for real (remote) modules and unknown names.
func (r *Registry) Validator(name string) (Validator, bool) {
	v, ok := r.validators[name]
	return v, ok
}

// FullSpec returns the full spec for the named module, or an empty
// document when the module is unknown.
func (r *Registry) FullSpec(name string) map[string]any {
	if spec, ok := r.specs[name]; ok {
		return spec.FullSpec()
	}
	return map[string]any{}
}

// AllSpecs returns a mapping of every registered module to its full spec.
func (r *Registry) AllSpecs() map[string]any {
	result := make(map[string]any, len(r.specs))
	for name, spec := range r.specs {
		result[name] = spec.FullSpec()
	}
	return result
}

// ConfigSpecs returns module name -> config-shape facet. With a non-empty
// name only that module is included (or nothing, when unknown).
func (r *Registry) ConfigSpecs(name string) map[string]any {
	return r.facet(name, (*ModuleSpec).ConfigSpec)
}

// CommandsSpecs returns module name -> commands facet, filtered like
// ConfigSpecs.
func (r *Registry) CommandsSpecs(name string) map[string]any {
	return r.facet(name, (*ModuleSpec).CommandsSpec)
}

// StatisticsSpecs returns module name -> statistics facet, filtered like
// ConfigSpecs.
func (r *Registry) StatisticsSpecs(name string) map[string]any {
	return r.facet(name, (*ModuleSpec).StatisticsSpec)
}

func (r *Registry) facet(name string, project func(*ModuleSpec) any) map[string]any {
	result := make(map[string]any)
	if name != "" {
		if spec, ok := r.specs[name]; ok {
			result[name] = project(spec)
		}
		return result
	}
	for moduleName, spec := range r.specs {
		result[moduleName] = project(spec)
	}
	return result
}
