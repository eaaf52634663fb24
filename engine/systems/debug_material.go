package systems

import (
	"encoding/binary"
	"math"

	glmath "github.com/glaciergfx/glacier/engine/math"
)

// DebugMaterial is a flat-colored unlit material used by debug drawing
// and tests.
type DebugMaterial struct {
	Color glmath.Vec3
}

// The GPU record is a std430 vec3: 12 bytes of data in a 16-byte slot.
func (DebugMaterial) ShaderDataSize() uint32 {
	return 12
}

func (m DebugMaterial) PutShaderData(out []byte) {
	binary.LittleEndian.PutUint32(out[0:4], math.Float32bits(m.Color.X))
	binary.LittleEndian.PutUint32(out[4:8], math.Float32bits(m.Color.Y))
	binary.LittleEndian.PutUint32(out[8:12], math.Float32bits(m.Color.Z))
}

func (DebugMaterial) RequiredAttributes() []VertexAttribute {
	return []VertexAttribute{VertexPosition}
}

func (DebugMaterial) SupportedAttributes() []VertexAttribute {
	return []VertexAttribute{VertexPosition}
}

func (DebugMaterial) Sorting() MaterialSorting {
	return SortFrontToBack
}
