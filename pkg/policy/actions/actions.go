package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/inventory"
	"mercator-hq/callisto/pkg/quality"
	"mercator-hq/callisto/pkg/sds"
)

// Class is the kind of effect an action has. Each action has exactly one.
type Class int

const (
	// External actions write to or delete from an external backend.
	External Class = iota

	// Mutating actions change the quality of a file by writing a sibling.
	Mutating

	// Destructive actions remove a file from the archive or object store.
	Destructive
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case Mutating:
		return "mutating"
	case Destructive:
		return "destructive"
	default:
		return "external"
	}
}

// Locked reports whether actions of class c require the per-file lock.
func (c Class) Locked() bool {
	return c == Mutating || c == Destructive
}

// Subject is the file an action is applied to.
type Subject struct {
	// File is the file identity.
	File sds.File

	// Entry is the archive entry of the file.
	Entry inventory.Entry

	// Checksum returns the file checksum. It is memoized for the pass.
	Checksum func(ctx context.Context) (string, error)

	// Env holds the configured backends.
	Env *backend.Env

	// Logger is scoped to the pass, file and rule.
	Logger *slog.Logger
}

func (s Subject) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s Subject) checksum(ctx context.Context) (string, error) {
	if s.Checksum != nil {
		return s.Checksum(ctx)
	}
	return s.Env.Archive.Checksum(ctx, s.File)
}

// Action applies a rule effect to a file. Applying an action whose effect
// already holds is a successful no-op.
type Action interface {
	Apply(ctx context.Context, s Subject) error
}

// Previewer is implemented by actions that can be configured to only log
// the effect they would have.
type Previewer interface {
	Preview() bool
}

// IsPreview reports whether a only logs its effect.
func IsPreview(a Action) bool {
	p, ok := a.(Previewer)
	return ok && p.Preview()
}

// previewFunc is a Func with a dry run switch.
type previewFunc struct {
	Func
	dryRun bool
}

func (p previewFunc) Preview() bool {
	return p.dryRun
}

// Func adapts a function to Action.
type Func func(ctx context.Context, s Subject) error

// Apply calls f.
func (f Func) Apply(ctx context.Context, s Subject) error {
	return f(ctx, s)
}

// Factory builds an action from its decoded rule options.
type Factory func(options map[string]any) (Action, error)

// Spec describes a registered action.
type Spec struct {
	// Name is the functionName used in rule tables.
	Name string

	// Class is the effect class.
	Class Class

	// Requires lists the backends the action uses.
	Requires []backend.Capability

	// Produces is the quality the file ends up with, empty when the action
	// leaves the file quality alone.
	Produces quality.Quality

	// New builds the action.
	New Factory
}

// Registry maps action names to specs.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds spec. Names must be unique.
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" || spec.New == nil {
		return fmt.Errorf("action spec requires a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.specs[spec.Name]; ok {
		return fmt.Errorf("action %q already registered", spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

// Alias registers alias as another name for the action called name.
func (r *Registry) Alias(alias, name string) error {
	spec, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown action %q", name)
	}
	spec.Name = alias
	return r.Register(spec)
}

// Lookup returns the spec called name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommonOptions are options every action accepts.
type CommonOptions struct {
	// ExitOnFailure makes a failure of the action fatal for the pass.
	ExitOnFailure bool `mapstructure:"exitOnFailure"`
}

// ParseCommonOptions decodes the options shared by all actions.
func ParseCommonOptions(options map[string]any) (CommonOptions, error) {
	var opts CommonOptions
	err := Decode(options, &opts)
	return opts, err
}

// Decode decodes rule options into out. Strings, numbers and booleans are
// converted weakly; keys out does not declare are ignored.
func Decode(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}
