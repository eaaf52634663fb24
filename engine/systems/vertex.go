package systems

// VertexAttribute names one stream of per-vertex data a material can
// consume.
type VertexAttribute string

const (
	VertexPosition VertexAttribute = "position"
	VertexNormal   VertexAttribute = "normal"
	VertexTangent  VertexAttribute = "tangent"
	VertexUV0      VertexAttribute = "uv0"
	VertexUV1      VertexAttribute = "uv1"
	VertexColor    VertexAttribute = "color"
	VertexJoints   VertexAttribute = "joints"
	VertexWeights  VertexAttribute = "weights"
)
