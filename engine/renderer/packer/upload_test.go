package packer

import (
	"context"
	"testing"

	"github.com/Carmen-Shannon/oxy-indirect/engine/renderer/indirect"
	"github.com/Carmen-Shannon/oxy-indirect/engine/scene"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuffer struct {
	desc BufferDesc
	data []byte
}

func (b *fakeBuffer) Label() string { return b.desc.Label }
func (b *fakeBuffer) Size() uint64  { return b.desc.Size }

type fakeUploader struct {
	live       map[*fakeBuffer]bool
	created    []BufferDesc
	failCreate string
	failCopy   bool
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{live: map[*fakeBuffer]bool{}}
}

func (f *fakeUploader) CreateBuffer(desc BufferDesc, data []byte) (Buffer, error) {
	if desc.Label == f.failCreate {
		return nil, errors.New("out of device memory")
	}
	if data != nil && desc.Memory != MemoryHostVisible {
		return nil, errors.New("initial data requires host-visible memory")
	}
	b := &fakeBuffer{desc: desc, data: make([]byte, desc.Size)}
	copy(b.data, data)
	f.live[b] = true
	f.created = append(f.created, desc)
	return b, nil
}

func (f *fakeUploader) CopyBuffer(_ context.Context, src, dst Buffer, size uint64) error {
	if f.failCopy {
		return errors.New("queue submit failed")
	}
	copy(dst.(*fakeBuffer).data[:size], src.(*fakeBuffer).data[:size])
	return nil
}

func (f *fakeUploader) DestroyBuffer(b Buffer) {
	delete(f.live, b.(*fakeBuffer))
}

func (f *fakeUploader) MinOffsetAlignment() uint64 { return 256 }

func TestStage(t *testing.T) {
	up := newFakeUploader()
	b, err := Stage(context.Background(), up, "materials", UsageStorage, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	assert.Len(t, up.live, 1, "staging buffer destroyed")
	fb := b.(*fakeBuffer)
	assert.Equal(t, []byte{1, 2, 3, 4}, fb.data)
	assert.Equal(t, MemoryDeviceLocal, fb.desc.Memory)
	assert.True(t, fb.desc.Usage.Has(UsageStorage|UsageCopyDst))

	require.Len(t, up.created, 2)
	assert.Equal(t, "materials_staging", up.created[0].Label)
	assert.Equal(t, MemoryHostVisible, up.created[0].Memory)
	assert.Equal(t, UsageCopySrc, up.created[0].Usage)
}

func TestStageFailuresLeaveNothing(t *testing.T) {
	up := newFakeUploader()
	up.failCopy = true
	_, err := Stage(context.Background(), up, "x", UsageStorage, []byte{1})
	assert.ErrorContains(t, err, "queue submit failed")
	assert.Empty(t, up.live)

	up = newFakeUploader()
	up.failCreate = "x"
	_, err = Stage(context.Background(), up, "x", UsageStorage, []byte{1})
	assert.Error(t, err)
	assert.Empty(t, up.live)

	_, err = Stage(context.Background(), newFakeUploader(), "empty", UsageStorage, nil)
	assert.Error(t, err)
}

func TestUploadCulledGetsRing(t *testing.T) {
	s := buildScene(t, scene.VariantCulled)
	p, err := Pack(context.Background(), s.Main(), 256)
	require.NoError(t, err)

	up := newFakeUploader()
	u, err := Upload(context.Background(), up, p, 2)
	require.NoError(t, err)

	require.Len(t, u.Indirect, 2)
	assert.Same(t, u.Indirect[0], u.IndirectFor(0))
	assert.Same(t, u.Indirect[1], u.IndirectFor(1))
	assert.Same(t, u.Indirect[0], u.IndirectFor(2))

	table, err := indirect.Decode(u.Indirect[1].(*fakeBuffer).data, 32)
	require.NoError(t, err)
	assert.Equal(t, p.Commands, table)

	assert.Equal(t, uint64(2560), u.Materials.Offset)
	assert.Same(t, u.Metadata, u.Primitives.Buffer)

	require.Len(t, u.Visible, 2, "one visible stream per ring slot")
	assert.Same(t, u.Visible[1], u.InstancesFor(1))
	assert.Same(t, u.Visible[0], u.InstancesFor(2))
	assert.NotSame(t, u.Instances, u.InstancesFor(0))
	assert.Equal(t, uint64(len(p.Instances)), u.Visible[0].Size())

	u.Release(up)
	assert.Empty(t, up.live)
}

func TestUploadStaticSharesOneSlot(t *testing.T) {
	s := buildScene(t, scene.VariantIndirectDraw)
	p, err := Pack(context.Background(), s.Main(), 256)
	require.NoError(t, err)

	u, err := Upload(context.Background(), newFakeUploader(), p, 2)
	require.NoError(t, err)
	assert.Len(t, u.Indirect, 1)
	assert.Same(t, u.IndirectFor(0), u.IndirectFor(1))
	assert.Empty(t, u.Visible)
	assert.Same(t, u.Instances, u.InstancesFor(1), "static draws read the authored instances")
}

func TestUploadVisibleFailureReleasesEverything(t *testing.T) {
	s := buildScene(t, scene.VariantCulled)
	p, err := Pack(context.Background(), s.Main(), 256)
	require.NoError(t, err)

	up := newFakeUploader()
	up.failCreate = "plants_visible"
	u, err := Upload(context.Background(), up, p, 2)
	require.Error(t, err)
	assert.Nil(t, u)
	assert.Empty(t, up.live)
}

func TestUploadFailureReleasesEverything(t *testing.T) {
	s := buildScene(t, scene.VariantCulled)
	p, err := Pack(context.Background(), s.Main(), 256)
	require.NoError(t, err)

	up := newFakeUploader()
	up.failCreate = "plants_indirect"
	u, err := Upload(context.Background(), up, p, 2)
	require.Error(t, err)
	assert.Nil(t, u)
	assert.Empty(t, up.live)
}
