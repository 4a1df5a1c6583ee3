// Package registry holds the process-wide trigger catalog and hint registry.
//
// Both follow a two-phase lifecycle: during initialization every event
// producer registers its triggers, hints, vetoes, and context builders on a
// Builder; Build() then returns an immutable Registry snapshot that serves
// reads for the remainder of the process. The Builder refuses registration
// after Build (fail fast — registration after init is a programming error).
package registry

import (
	"fmt"
	"sort"

	"relaypoint/internal/types"
)

// TriggerOption customizes trigger registration.
type TriggerOption func(*triggerEntry)

// WithoutUserContext marks a trigger whose payload carries no customer
// context. Universal user hints are not advertised for such triggers.
func WithoutUserContext() TriggerOption {
	return func(t *triggerEntry) {
		t.noUserContext = true
	}
}

type triggerEntry struct {
	descriptor    types.TriggerDescriptor
	noUserContext bool
}

// Builder accumulates registrations during process initialization.
// It is not safe for concurrent use; producers register sequentially at
// startup before any event fires.
type Builder struct {
	triggers  []triggerEntry
	universal []types.HintEntry
	hints     map[types.TriggerID][]types.HintEntry
	excluded  map[types.TriggerID]map[string]bool
	vetoes    map[types.TriggerID][]types.VetoFunc
	builders  map[types.TriggerID]types.ContextBuilder
	frozen    bool
}

// NewBuilder returns an empty Builder ready for producer registration.
func NewBuilder() *Builder {
	return &Builder{
		hints:    make(map[types.TriggerID][]types.HintEntry),
		excluded: make(map[types.TriggerID]map[string]bool),
		vetoes:   make(map[types.TriggerID][]types.VetoFunc),
		builders: make(map[types.TriggerID]types.ContextBuilder),
	}
}

func (b *Builder) mustBeOpen(op string) {
	if b.frozen {
		panic(fmt.Sprintf("registry: %s called after Build (%s)", op, types.ErrCodeRegistryFrozen))
	}
}

// RegisterTrigger adds a trigger to the catalog. Registering the same ID
// twice overwrites the label, matching last-writer-wins filter semantics.
func (b *Builder) RegisterTrigger(id types.TriggerID, label string, opts ...TriggerOption) *Builder {
	b.mustBeOpen("RegisterTrigger")
	entry := triggerEntry{descriptor: types.TriggerDescriptor{ID: id, Label: label}}
	for _, opt := range opts {
		opt(&entry)
	}
	for i, existing := range b.triggers {
		if existing.descriptor.ID == id {
			b.triggers[i] = entry
			return b
		}
	}
	b.triggers = append(b.triggers, entry)
	return b
}

// RegisterUniversalHints adds hints that apply to every trigger with a user
// context (customer name, email, username and so on).
func (b *Builder) RegisterUniversalHints(entries ...types.HintEntry) *Builder {
	b.mustBeOpen("RegisterUniversalHints")
	b.universal = append(b.universal, entries...)
	return b
}

// RegisterHints adds trigger-specific hints.
func (b *Builder) RegisterHints(id types.TriggerID, entries ...types.HintEntry) *Builder {
	b.mustBeOpen("RegisterHints")
	b.hints[id] = append(b.hints[id], entries...)
	return b
}

// ExcludeHint removes a token from one trigger's advertised hint set even
// when a shared hint group would otherwise contribute it (e.g. a site
// activation count is meaningless for a just-generated license).
func (b *Builder) ExcludeHint(id types.TriggerID, token string) *Builder {
	b.mustBeOpen("ExcludeHint")
	if b.excluded[id] == nil {
		b.excluded[id] = make(map[string]bool)
	}
	b.excluded[id][token] = true
	return b
}

// RegisterVeto appends a pre-dispatch veto check for each of the given
// triggers. Per trigger, vetoes run in registration order and short-circuit
// on the first bail.
func (b *Builder) RegisterVeto(ids []types.TriggerID, fn types.VetoFunc) *Builder {
	b.mustBeOpen("RegisterVeto")
	for _, id := range ids {
		b.vetoes[id] = append(b.vetoes[id], fn)
	}
	return b
}

// RegisterContextBuilder sets the template-context builder for a trigger.
// Only one builder per trigger; a second registration overwrites the first.
func (b *Builder) RegisterContextBuilder(id types.TriggerID, fn types.ContextBuilder) *Builder {
	b.mustBeOpen("RegisterContextBuilder")
	b.builders[id] = fn
	return b
}

// Build freezes the builder and returns the immutable serving snapshot.
func (b *Builder) Build() *Registry {
	b.mustBeOpen("Build")
	b.frozen = true

	r := &Registry{
		triggers: make(map[types.TriggerID]triggerEntry, len(b.triggers)),
		order:    make([]types.TriggerID, 0, len(b.triggers)),
		hints:    make(map[types.TriggerID][]types.HintEntry, len(b.hints)),
		vetoes:   make(map[types.TriggerID][]types.VetoFunc, len(b.vetoes)),
		builders: make(map[types.TriggerID]types.ContextBuilder, len(b.builders)),
	}

	for _, entry := range b.triggers {
		r.triggers[entry.descriptor.ID] = entry
		r.order = append(r.order, entry.descriptor.ID)
	}

	for _, entry := range b.triggers {
		id := entry.descriptor.ID
		merged := make([]types.HintEntry, 0, len(b.universal)+len(b.hints[id]))
		if !entry.noUserContext {
			merged = append(merged, b.universal...)
		}
		merged = append(merged, b.hints[id]...)
		r.hints[id] = dedupeHints(merged, b.excluded[id])
	}

	for id, fns := range b.vetoes {
		r.vetoes[id] = append([]types.VetoFunc(nil), fns...)
	}
	for id, fn := range b.builders {
		r.builders[id] = fn
	}

	return r
}

// dedupeHints keeps the last registration per token (later producers may
// refine descriptions) and drops explicitly excluded tokens.
func dedupeHints(entries []types.HintEntry, excluded map[string]bool) []types.HintEntry {
	byToken := make(map[string]int, len(entries))
	out := make([]types.HintEntry, 0, len(entries))
	for _, e := range entries {
		if excluded[e.Token] {
			continue
		}
		if i, seen := byToken[e.Token]; seen {
			out[i] = e
			continue
		}
		byToken[e.Token] = len(out)
		out = append(out, e)
	}
	return out
}

// Registry is the frozen, read-only serving snapshot. All methods are safe
// for unsynchronized concurrent use: nothing mutates after Build.
type Registry struct {
	triggers map[types.TriggerID]triggerEntry
	order    []types.TriggerID
	hints    map[types.TriggerID][]types.HintEntry
	vetoes   map[types.TriggerID][]types.VetoFunc
	builders map[types.TriggerID]types.ContextBuilder
}

// HasTrigger reports whether the trigger is registered. Rules configured
// against unknown triggers are rejected at the matcher boundary.
func (r *Registry) HasTrigger(id types.TriggerID) bool {
	_, ok := r.triggers[id]
	return ok
}

// TriggerLabel returns the display label for a trigger.
func (r *Registry) TriggerLabel(id types.TriggerID) (string, bool) {
	entry, ok := r.triggers[id]
	if !ok {
		return "", false
	}
	return entry.descriptor.Label, true
}

// Triggers returns the catalog sorted by label, the order the configuration
// surface presents them in.
func (r *Registry) Triggers() []types.TriggerDescriptor {
	out := make([]types.TriggerDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.triggers[id].descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Hints returns the advertised hint set for a trigger: universal hints (when
// the trigger has a user context) plus trigger-specific hints, minus any
// explicit exclusions. The returned slice is a copy.
func (r *Registry) Hints(id types.TriggerID) []types.HintEntry {
	return append([]types.HintEntry(nil), r.hints[id]...)
}

// Vetoes returns the ordered veto chain for a trigger. Triggers without
// registered vetoes return nil — most triggers need none.
func (r *Registry) Vetoes(id types.TriggerID) []types.VetoFunc {
	return r.vetoes[id]
}

// ContextBuilder returns the template-context builder for a trigger, or
// false when the trigger's producer registered none.
func (r *Registry) ContextBuilder(id types.TriggerID) (types.ContextBuilder, bool) {
	fn, ok := r.builders[id]
	return fn, ok
}
