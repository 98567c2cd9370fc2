package md5

import (
	"fmt"

	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Vertex buffer layout, in floats.
const (
	VertexStride   = 11
	PositionOffset = 0
	UVOffset       = 3
	NormalOffset   = 5
	TangentOffset  = 8
)

// DefaultMaxWeights is the influence limit used when none is configured.
const DefaultMaxWeights = 4

// weight is one joint influence. Normal and tangent are stored in the
// joint's local space so skinning only has to rotate them.
type weight struct {
	joint    int
	bias     float32
	position math.Vec3
	normal   math.Vec3
	tangent  math.Vec3
}

type vertex struct {
	uv          math.Vec2
	firstWeight int
	weightCount int
}

type subMesh struct {
	shader    string
	offset    int // First vertex slot in the combined buffer
	vertices  []vertex
	weights   []weight
	triangles [][3]int
}

// Mesh is a CPU-skinnable MD5 mesh.
type Mesh struct {
	bind        []Joint
	meshes      []subMesh
	vertexCount int
	maxWeights  int
}

// NewMesh prepares a parsed MD5 mesh for skinning. Bind-pose normals and
// tangents are derived from the triangles and moved into each weight's joint
// space. Only the first maxWeights influences of a vertex are used.
func NewMesh(src *formats.MD5Mesh, maxWeights int) (*Mesh, error) {
	if maxWeights <= 0 {
		maxWeights = DefaultMaxWeights
	}

	m := &Mesh{
		bind:       make([]Joint, len(src.Joints)),
		meshes:     make([]subMesh, len(src.Meshes)),
		maxWeights: maxWeights,
	}
	for i, j := range src.Joints {
		if j.Parent < -1 || j.Parent >= i {
			return nil, fmt.Errorf("%w: mesh joint %d (%s) has parent %d", ErrInvalidHierarchy, i, j.Name, j.Parent)
		}
		m.bind[i] = Joint{
			Name:        j.Name,
			Parent:      j.Parent,
			Position:    math.Vec3FromArray(j.Position),
			Orientation: math.QuatFromXYZ(j.Orientation[0], j.Orientation[1], j.Orientation[2]),
		}
	}

	for si, s := range src.Meshes {
		sub := subMesh{
			shader:    s.Shader,
			offset:    m.vertexCount,
			vertices:  make([]vertex, len(s.Vertices)),
			weights:   make([]weight, len(s.Weights)),
			triangles: append([][3]int(nil), s.Triangles...),
		}
		for wi, w := range s.Weights {
			if w.Joint < 0 || w.Joint >= len(m.bind) {
				return nil, fmt.Errorf("%w: mesh %d weight %d references joint %d", formats.ErrInvalidMD5Weight, si, wi, w.Joint)
			}
			sub.weights[wi] = weight{joint: w.Joint, bias: w.Bias, position: math.Vec3FromArray(w.Position)}
		}
		for vi, v := range s.Vertices {
			if v.WeightStart < 0 || v.WeightCount < 0 || v.WeightStart+v.WeightCount > len(s.Weights) {
				return nil, fmt.Errorf("%w: mesh %d vertex %d", formats.ErrInvalidMD5Weight, si, vi)
			}
			sub.vertices[vi] = vertex{
				uv:          math.Vec2{X: v.UV[0], Y: v.UV[1]},
				firstWeight: v.WeightStart,
				weightCount: v.WeightCount,
			}
		}
		for ti, tri := range sub.triangles {
			for _, idx := range tri {
				if idx < 0 || idx >= len(sub.vertices) {
					return nil, fmt.Errorf("%w: mesh %d triangle %d", formats.ErrInvalidMD5Triangle, si, ti)
				}
			}
		}

		m.prepareTangentSpace(&sub)
		m.meshes[si] = sub
		m.vertexCount += len(sub.vertices)
	}

	return m, nil
}

// prepareTangentSpace computes bind-pose normals and tangents and stores them
// per weight in joint-local space. Weights shared by several vertices keep the
// last vertex's frame.
func (m *Mesh) prepareTangentSpace(sub *subMesh) {
	positions := make([]math.Vec3, len(sub.vertices))
	for vi := range sub.vertices {
		positions[vi] = m.bindPosition(sub, vi)
	}

	normals := make([]math.Vec3, len(sub.vertices))
	tangents := make([]math.Vec3, len(sub.vertices))
	for _, tri := range sub.triangles {
		p0, p1, p2 := positions[tri[0]], positions[tri[1]], positions[tri[2]]
		e1, e2 := p1.Sub(p0), p2.Sub(p0)
		n := e1.Cross(e2)

		uv0, uv1, uv2 := sub.vertices[tri[0]].uv, sub.vertices[tri[1]].uv, sub.vertices[tri[2]].uv
		d1, d2 := uv1.Sub(uv0), uv2.Sub(uv0)
		var tan math.Vec3
		if det := d1.X*d2.Y - d2.X*d1.Y; det != 0 {
			tan = e1.Scale(d2.Y).Sub(e2.Scale(d1.Y)).Scale(1 / det)
		}

		for _, idx := range tri {
			normals[idx] = normals[idx].Add(n)
			tangents[idx] = tangents[idx].Add(tan)
		}
	}

	for vi, v := range sub.vertices {
		n := normals[vi].Normalize()
		// Gram-Schmidt against the normal
		t := tangents[vi].Sub(n.Scale(n.Dot(tangents[vi]))).Normalize()

		for k := 0; k < v.weightCount; k++ {
			w := &sub.weights[v.firstWeight+k]
			inv := m.bind[w.joint].Orientation.Conjugate()
			w.normal = inv.Rotate(n)
			w.tangent = inv.Rotate(t)
		}
	}
}

func (m *Mesh) bindPosition(sub *subMesh, vi int) math.Vec3 {
	v := sub.vertices[vi]
	var p math.Vec3
	for k := 0; k < v.weightCount && k < m.maxWeights; k++ {
		w := sub.weights[v.firstWeight+k]
		j := m.bind[w.joint]
		p = p.Add(j.Orientation.Rotate(w.position).Add(j.Position).Scale(w.bias))
	}
	return p
}

// VertexCount returns the number of vertices across all sub-meshes.
func (m *Mesh) VertexCount() int { return m.vertexCount }

// JointCount returns the number of bind-pose joints.
func (m *Mesh) JointCount() int { return len(m.bind) }

// MaxWeights returns the per-vertex influence limit.
func (m *Mesh) MaxWeights() int { return m.maxWeights }

// BindPose returns a copy of the bind-pose joints.
func (m *Mesh) BindPose() []Joint {
	return append([]Joint(nil), m.bind...)
}

// Shaders returns each sub-mesh's shader name.
func (m *Mesh) Shaders() []string {
	out := make([]string, len(m.meshes))
	for i, sub := range m.meshes {
		out[i] = sub.shader
	}
	return out
}

// Indices returns the triangle list for the combined vertex buffer.
func (m *Mesh) Indices() []uint32 {
	var out []uint32
	for _, sub := range m.meshes {
		for _, tri := range sub.triangles {
			for _, idx := range tri {
				out = append(out, uint32(sub.offset+idx))
			}
		}
	}
	return out
}

// NewVertexBuffer allocates a buffer for every vertex with UVs filled in.
func (m *Mesh) NewVertexBuffer() []float32 {
	buf := make([]float32, m.vertexCount*VertexStride)
	for _, sub := range m.meshes {
		for vi, v := range sub.vertices {
			base := (sub.offset + vi) * VertexStride
			buf[base+UVOffset] = v.uv.X
			buf[base+UVOffset+1] = v.uv.Y
		}
	}
	return buf
}

// Skin writes every vertex skinned against joints into buf, starting at
// vertex slot offset. Positions are the weighted sum of each influence's
// joint transform; normals and tangents are only rotated.
func (m *Mesh) Skin(joints []Joint, buf []float32, offset int) error {
	if len(joints) != len(m.bind) {
		return fmt.Errorf("%w: mesh has %d joints, pose has %d", ErrJointCountMismatch, len(m.bind), len(joints))
	}
	if offset < 0 || (offset+m.vertexCount)*VertexStride > len(buf) {
		return fmt.Errorf("%w: need %d floats from vertex %d, have %d",
			ErrBufferTooSmall, m.vertexCount*VertexStride, offset, len(buf))
	}

	for _, sub := range m.meshes {
		for vi, v := range sub.vertices {
			var pos, normal, tangent math.Vec3
			for k := 0; k < v.weightCount && k < m.maxWeights; k++ {
				w := sub.weights[v.firstWeight+k]
				j := joints[w.joint]
				pos = pos.Add(j.Orientation.Rotate(w.position).Add(j.Position).Scale(w.bias))
				normal = normal.Add(j.Orientation.Rotate(w.normal).Scale(w.bias))
				tangent = tangent.Add(j.Orientation.Rotate(w.tangent).Scale(w.bias))
			}

			base := (offset + sub.offset + vi) * VertexStride
			buf[base+PositionOffset] = pos.X
			buf[base+PositionOffset+1] = pos.Y
			buf[base+PositionOffset+2] = pos.Z
			buf[base+UVOffset] = v.uv.X
			buf[base+UVOffset+1] = v.uv.Y
			buf[base+NormalOffset] = normal.X
			buf[base+NormalOffset+1] = normal.Y
			buf[base+NormalOffset+2] = normal.Z
			buf[base+TangentOffset] = tangent.X
			buf[base+TangentOffset+1] = tangent.Y
			buf[base+TangentOffset+2] = tangent.Z
		}
	}
	return nil
}

// ValidateWeights reports the first vertex whose used influence weights do
// not sum to 1 within eps.
func (m *Mesh) ValidateWeights(eps float32) error {
	for si, sub := range m.meshes {
		for vi, v := range sub.vertices {
			var sum float32
			for k := 0; k < v.weightCount && k < m.maxWeights; k++ {
				sum += sub.weights[v.firstWeight+k].bias
			}
			if d := sum - 1; d > eps || d < -eps {
				return fmt.Errorf("%w: mesh %d vertex %d sums to %v", ErrWeightSum, si, vi, sum)
			}
		}
	}
	return nil
}
