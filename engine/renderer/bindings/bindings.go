// Package bindings is the binding-index contract shared by the host code and the WGSL shaders.
// Every buffer or texture a pipeline binds is named here once; the shader package verifies that
// the embedded WGSL declares exactly these slots.
package bindings

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind is the resource class bound at a slot.
type Kind uint8

const (
	KindUniform Kind = iota
	KindStorage
	KindReadOnlyStorage
	KindTexture
	KindSampler
)

func (k Kind) String() string {
	switch k {
	case KindUniform:
		return "uniform"
	case KindStorage:
		return "storage"
	case KindReadOnlyStorage:
		return "read-only-storage"
	case KindTexture:
		return "texture"
	case KindSampler:
		return "sampler"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Slot is one binding in a group.
type Slot struct {
	Binding uint32
	Name    string
	Kind    Kind
}

// Contract is the full set of bindings one pipeline uses in one group.
type Contract struct {
	Name  string
	Group uint32
	Slots []Slot
}

// Render pipeline bindings for the plant, ground and sky draws.
const (
	Scene             uint32 = 0
	PlantTextureArray uint32 = 1
	Texture           uint32 = 2
	Primitives        uint32 = 3
	Materials         uint32 = 4
	Sampler           uint32 = 5
)

// Cull kernel bindings.
const (
	CullScene      uint32 = 0
	CullPrimitives uint32 = 1
	CullInstances  uint32 = 2
	CullCommands   uint32 = 3
	CullVisible    uint32 = 4
)

// Cluster pipeline bindings. The vertex stage pulls instance data and geometry from storage.
const (
	ClusterScene        uint32 = 0
	ClusterTextureArray uint32 = 1
	ClusterSampler      uint32 = 2
	ClusterInstances    uint32 = 3
	ClusterTexIndex     uint32 = 4
	ClusterVertices     uint32 = 5
	ClusterIndices      uint32 = 6
)

var (
	// Render is the contract of render.wgsl.
	Render = Contract{
		Name: "render",
		Slots: []Slot{
			{Scene, "scene", KindUniform},
			{PlantTextureArray, "plant_textures", KindTexture},
			{Texture, "ground_texture", KindTexture},
			{Primitives, "primitives", KindReadOnlyStorage},
			{Materials, "materials", KindReadOnlyStorage},
			{Sampler, "tex_sampler", KindSampler},
		},
	}

	// Cull is the contract of the cull kernel.
	Cull = Contract{
		Name: "cull",
		Slots: []Slot{
			{CullScene, "scene", KindUniform},
			{CullPrimitives, "primitives", KindReadOnlyStorage},
			{CullInstances, "instances", KindReadOnlyStorage},
			{CullCommands, "commands", KindStorage},
			{CullVisible, "visible", KindStorage},
		},
	}

	// Cluster is the contract of cluster.wgsl.
	Cluster = Contract{
		Name: "cluster",
		Slots: []Slot{
			{ClusterScene, "scene", KindUniform},
			{ClusterTextureArray, "plant_textures", KindTexture},
			{ClusterSampler, "tex_sampler", KindSampler},
			{ClusterInstances, "instances", KindReadOnlyStorage},
			{ClusterTexIndex, "tex_index", KindReadOnlyStorage},
			{ClusterVertices, "vertices", KindReadOnlyStorage},
			{ClusterIndices, "indices", KindReadOnlyStorage},
		},
	}
)

// Lookup finds a slot by name.
func (c Contract) Lookup(name string) (Slot, bool) {
	for _, s := range c.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// Validate rejects duplicate binding indices or names.
func (c Contract) Validate() error {
	byIndex := map[uint32]string{}
	byName := map[string]bool{}
	for _, s := range c.Slots {
		if prev, ok := byIndex[s.Binding]; ok {
			return errors.AssertionFailedf("bindings: %s binding %d used by %s and %s", c.Name, s.Binding, prev, s.Name)
		}
		if byName[s.Name] {
			return errors.AssertionFailedf("bindings: %s name %q declared twice", c.Name, s.Name)
		}
		byIndex[s.Binding] = s.Name
		byName[s.Name] = true
	}
	return nil
}
