// MD5 mesh format parser for flat-hierarchy skinned meshes.
package formats

import (
	"fmt"
	"os"
)

// MD5Joint is a bind-pose joint of an MD5 mesh.
type MD5Joint struct {
	Name        string
	Parent      int        // -1 for a root joint
	Position    [3]float32 // Object-space bind position
	Orientation [3]float32 // Quaternion x, y, z; w is reconstructed
}

// MD5Vertex references a contiguous range of weights.
type MD5Vertex struct {
	UV          [2]float32
	WeightStart int
	WeightCount int
}

// MD5Weight is one joint influence on a vertex.
type MD5Weight struct {
	Joint    int
	Bias     float32
	Position [3]float32 // Position in joint-local space
}

// MD5SubMesh is one "mesh" block.
type MD5SubMesh struct {
	Shader    string
	Vertices  []MD5Vertex
	Triangles [][3]int
	Weights   []MD5Weight
}

// MD5Mesh represents a parsed .md5mesh file.
type MD5Mesh struct {
	Version     int
	CommandLine string
	Joints      []MD5Joint
	Meshes      []MD5SubMesh
}

// ParseMD5Mesh parses an MD5 mesh from raw text.
func ParseMD5Mesh(data []byte) (*MD5Mesh, error) {
	l := newMD5Lexer(data)
	mesh := &MD5Mesh{}

	numJoints, numMeshes := -1, -1

	for !l.done() {
		key, err := l.next()
		if err != nil {
			return nil, err
		}

		switch key {
		case "MD5Version":
			if mesh.Version, err = parseMD5Version(l); err != nil {
				return nil, err
			}
		case "commandline":
			if mesh.CommandLine, err = l.next(); err != nil {
				return nil, err
			}
		case "numJoints":
			if numJoints, err = l.readInt(); err != nil {
				return nil, err
			}
		case "numMeshes":
			if numMeshes, err = l.readInt(); err != nil {
				return nil, err
			}
		case "joints":
			if mesh.Joints, err = parseMD5Joints(l); err != nil {
				return nil, err
			}
		case "mesh":
			sub, err := parseMD5SubMesh(l)
			if err != nil {
				return nil, fmt.Errorf("mesh %d: %w", len(mesh.Meshes), err)
			}
			mesh.Meshes = append(mesh.Meshes, sub)
		default:
			return nil, l.errorf("unknown keyword %q", key)
		}
	}

	if mesh.Version == 0 {
		return nil, ErrInvalidMD5Version
	}
	if numJoints >= 0 && numJoints != len(mesh.Joints) {
		return nil, fmt.Errorf("%w: numJoints %d, joints has %d", ErrMD5CountMismatch, numJoints, len(mesh.Joints))
	}
	if numMeshes >= 0 && numMeshes != len(mesh.Meshes) {
		return nil, fmt.Errorf("%w: numMeshes %d, found %d", ErrMD5CountMismatch, numMeshes, len(mesh.Meshes))
	}
	if err := mesh.validate(); err != nil {
		return nil, err
	}

	return mesh, nil
}

// ParseMD5MeshFile parses an MD5 mesh from a file path.
func ParseMD5MeshFile(path string) (*MD5Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading MD5 mesh file: %w", err)
	}
	return ParseMD5Mesh(data)
}

func (m *MD5Mesh) validate() error {
	for i, j := range m.Joints {
		if j.Parent < -1 || j.Parent >= i {
			return fmt.Errorf("%w: joint %d (%s) has parent %d", ErrInvalidMD5Hierarchy, i, j.Name, j.Parent)
		}
	}

	for mi, sub := range m.Meshes {
		for vi, v := range sub.Vertices {
			if v.WeightStart < 0 || v.WeightCount < 0 || v.WeightStart+v.WeightCount > len(sub.Weights) {
				return fmt.Errorf("%w: mesh %d vertex %d uses weights [%d, %d) of %d",
					ErrInvalidMD5Weight, mi, vi, v.WeightStart, v.WeightStart+v.WeightCount, len(sub.Weights))
			}
		}
		for wi, w := range sub.Weights {
			if w.Joint < 0 || w.Joint >= len(m.Joints) {
				return fmt.Errorf("%w: mesh %d weight %d references joint %d", ErrInvalidMD5Weight, mi, wi, w.Joint)
			}
		}
		for ti, tri := range sub.Triangles {
			for _, idx := range tri {
				if idx < 0 || idx >= len(sub.Vertices) {
					return fmt.Errorf("%w: mesh %d triangle %d references vertex %d", ErrInvalidMD5Triangle, mi, ti, idx)
				}
			}
		}
	}
	return nil
}

// GetTotalVertexCount returns the vertex count across all sub-meshes.
func (m *MD5Mesh) GetTotalVertexCount() int {
	total := 0
	for _, sub := range m.Meshes {
		total += len(sub.Vertices)
	}
	return total
}

// GetTotalTriangleCount returns the triangle count across all sub-meshes.
func (m *MD5Mesh) GetTotalTriangleCount() int {
	total := 0
	for _, sub := range m.Meshes {
		total += len(sub.Triangles)
	}
	return total
}

func parseMD5Joints(l *md5Lexer) ([]MD5Joint, error) {
	if err := l.expect("{"); err != nil {
		return nil, err
	}
	var joints []MD5Joint
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok == "}" {
			return joints, nil
		}

		j := MD5Joint{Name: tok}
		if j.Parent, err = l.readInt(); err != nil {
			return nil, err
		}
		if j.Position, err = l.vec3(); err != nil {
			return nil, err
		}
		if j.Orientation, err = l.vec3(); err != nil {
			return nil, err
		}
		joints = append(joints, j)
	}
}

func parseMD5SubMesh(l *md5Lexer) (MD5SubMesh, error) {
	var sub MD5SubMesh
	if err := l.expect("{"); err != nil {
		return sub, err
	}

	for {
		key, err := l.next()
		if err != nil {
			return sub, err
		}

		switch key {
		case "}":
			return sub, nil
		case "shader":
			if sub.Shader, err = l.next(); err != nil {
				return sub, err
			}
		case "numverts":
			n, err := l.readCount(key)
			if err != nil {
				return sub, err
			}
			sub.Vertices = make([]MD5Vertex, n)
		case "vert":
			idx, err := l.readInt()
			if err != nil {
				return sub, err
			}
			if idx < 0 || idx >= len(sub.Vertices) {
				return sub, fmt.Errorf("%w: vert %d outside numverts %d", ErrMD5CountMismatch, idx, len(sub.Vertices))
			}
			v := &sub.Vertices[idx]
			if v.UV, err = l.vec2(); err != nil {
				return sub, err
			}
			if v.WeightStart, err = l.readInt(); err != nil {
				return sub, err
			}
			if v.WeightCount, err = l.readInt(); err != nil {
				return sub, err
			}
		case "numtris":
			n, err := l.readCount(key)
			if err != nil {
				return sub, err
			}
			sub.Triangles = make([][3]int, n)
		case "tri":
			idx, err := l.readInt()
			if err != nil {
				return sub, err
			}
			if idx < 0 || idx >= len(sub.Triangles) {
				return sub, fmt.Errorf("%w: tri %d outside numtris %d", ErrMD5CountMismatch, idx, len(sub.Triangles))
			}
			for k := 0; k < 3; k++ {
				if sub.Triangles[idx][k], err = l.readInt(); err != nil {
					return sub, err
				}
			}
		case "numweights":
			n, err := l.readCount(key)
			if err != nil {
				return sub, err
			}
			sub.Weights = make([]MD5Weight, n)
		case "weight":
			idx, err := l.readInt()
			if err != nil {
				return sub, err
			}
			if idx < 0 || idx >= len(sub.Weights) {
				return sub, fmt.Errorf("%w: weight %d outside numweights %d", ErrMD5CountMismatch, idx, len(sub.Weights))
			}
			w := &sub.Weights[idx]
			if w.Joint, err = l.readInt(); err != nil {
				return sub, err
			}
			if w.Bias, err = l.readFloat(); err != nil {
				return sub, err
			}
			if w.Position, err = l.vec3(); err != nil {
				return sub, err
			}
		default:
			return sub, l.errorf("unknown mesh keyword %q", key)
		}
	}
}
