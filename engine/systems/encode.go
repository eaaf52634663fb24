package systems

import (
	"encoding/binary"
	"math"

	glmath "github.com/glaciergfx/glacier/engine/math"
)

func putUint32s(out []byte, values []uint32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
}

func putFloat32(out []byte, v float32) {
	binary.LittleEndian.PutUint32(out, math.Float32bits(v))
}

func putMat4(out []byte, m glmath.Mat4) {
	for i, v := range m {
		putFloat32(out[i*4:], v)
	}
}
