package bind_group_provider

import (
	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/bindings"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// BufferRange is a buffer binding: a sub-range of one buffer.
type BufferRange struct {
	Buffer *wgpu.Buffer
	Offset uint64
	Size   uint64
}

type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label    string
	contract bindings.Contract

	// The following are keyed by contract slot name and set through the builder options.

	buffers      map[string]BufferRange
	textureViews map[string]*wgpu.TextureView
	samplers     map[string]*wgpu.Sampler

	// bindGroup is created by the backend from Entries and owned by the provider.
	bindGroup *wgpu.BindGroup
}

// BindGroupProvider collects the resources a bind group binds, by the slot names of a binding
// contract, and checks them against it before the backend creates the group.
//
// Usage pattern:
//  1. Backend creates a provider for a contract with the buffers, views and samplers it has
//  2. Backend calls Entries() and creates the bind group from them
//  3. Backend stores the group via SetBindGroup() and binds BindGroup() while recording
type BindGroupProvider interface {
	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Contract returns the binding contract the provider fills.
	Contract() bindings.Contract

	// Entries builds the bind group entries in binding order.
	//
	// Returns:
	//   - []wgpu.BindGroupEntry: one entry per contract slot
	//   - error: every unfilled slot, or a resource of the wrong class for its slot
	Entries() ([]wgpu.BindGroupEntry, error)

	// BindGroup returns the created bind group, or nil before SetBindGroup.
	BindGroup() *wgpu.BindGroup

	// SetBindGroup stores the bind group created from Entries.
	//
	// Parameters:
	//   - bg: the created bind group
	SetBindGroup(bg *wgpu.BindGroup)

	// Release releases the bind group. The bound resources belong to their creators.
	Release()
}

var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a provider for one contract.
//
// Parameters:
//   - label: debug label, also used for the bind group
//   - contract: the slots to fill
//   - options: resources to bind
//
// Returns:
//   - BindGroupProvider: the provider
func NewBindGroupProvider(label string, contract bindings.Contract, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:        label,
		contract:     contract,
		buffers:      map[string]BufferRange{},
		textureViews: map[string]*wgpu.TextureView{},
		samplers:     map[string]*wgpu.Sampler{},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) Contract() bindings.Contract {
	return p.contract
}

func (p *bindGroupProvider) Entries() ([]wgpu.BindGroupEntry, error) {
	var errs error
	entries := make([]wgpu.BindGroupEntry, 0, len(p.contract.Slots))
	for _, slot := range p.contract.Slots {
		e := wgpu.BindGroupEntry{Binding: slot.Binding}
		switch slot.Kind {
		case bindings.KindTexture:
			tv, ok := p.textureViews[slot.Name]
			if !ok {
				errs = errors.CombineErrors(errs, p.missing(slot))
				continue
			}
			e.TextureView = tv
		case bindings.KindSampler:
			s, ok := p.samplers[slot.Name]
			if !ok {
				errs = errors.CombineErrors(errs, p.missing(slot))
				continue
			}
			e.Sampler = s
		default:
			br, ok := p.buffers[slot.Name]
			if !ok {
				errs = errors.CombineErrors(errs, p.missing(slot))
				continue
			}
			e.Buffer, e.Offset, e.Size = br.Buffer, br.Offset, br.Size
			if e.Size == 0 {
				e.Size = wgpu.WholeSize
			}
		}
		entries = append(entries, e)
	}
	for name := range p.buffers {
		errs = errors.CombineErrors(errs, p.misplaced(name, bindings.KindUniform, bindings.KindStorage, bindings.KindReadOnlyStorage))
	}
	for name := range p.textureViews {
		errs = errors.CombineErrors(errs, p.misplaced(name, bindings.KindTexture))
	}
	for name := range p.samplers {
		errs = errors.CombineErrors(errs, p.misplaced(name, bindings.KindSampler))
	}
	if errs != nil {
		return nil, errs
	}
	return entries, nil
}

func (p *bindGroupProvider) missing(slot bindings.Slot) error {
	return errors.Newf("%s: %s binding %d (%s, %s) has no resource", p.label, p.contract.Name, slot.Binding, slot.Name, slot.Kind)
}

func (p *bindGroupProvider) misplaced(name string, kinds ...bindings.Kind) error {
	slot, ok := p.contract.Lookup(name)
	if !ok {
		return errors.Newf("%s: %s has no slot %q", p.label, p.contract.Name, name)
	}
	for _, k := range kinds {
		if slot.Kind == k {
			return nil
		}
	}
	return errors.Newf("%s: %s is a %s slot", p.label, name, slot.Kind)
}

func (p *bindGroupProvider) BindGroup() *wgpu.BindGroup {
	return p.bindGroup
}

func (p *bindGroupProvider) SetBindGroup(bg *wgpu.BindGroup) {
	p.bindGroup = bg
}

func (p *bindGroupProvider) Release() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
}
