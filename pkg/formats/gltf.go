// glTF skin and animation extraction for tree-hierarchy skeletons.
package formats

import (
	"errors"
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// glTF extraction errors.
var (
	ErrNoSkin              = errors.New("glTF document has no skin")
	ErrUnsupportedAccessor = errors.New("unsupported glTF accessor")
	ErrInvalidGLTFIndex    = errors.New("glTF index out of range")
	ErrTruncatedGLTFData   = errors.New("truncated glTF buffer data")
)

// GLTFPath is the joint property a channel animates.
type GLTFPath int

const (
	GLTFPathTranslation GLTFPath = iota
	GLTFPathRotation
)

// String returns the glTF name of the path.
func (p GLTFPath) String() string {
	switch p {
	case GLTFPathTranslation:
		return "translation"
	case GLTFPathRotation:
		return "rotation"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// GLTFInterpolation is a sampler's interpolation mode.
type GLTFInterpolation int

const (
	GLTFInterpolationLinear GLTFInterpolation = iota
	GLTFInterpolationStep
	GLTFInterpolationCubicSpline // Values keep only the spline points, tangents are dropped
)

// GLTFJoint is one skin joint, in skin order.
type GLTFJoint struct {
	Name        string
	Node        int        // Node index in the document
	Parent      int        // Joint index within the skin, -1 for the root
	Children    []int      // Joint indices within the skin
	Translation [3]float32 // Rest translation
	Rotation    [4]float32 // Rest rotation, x y z w
	InverseBind [16]float32
}

// GLTFChannel is one animated joint property.
type GLTFChannel struct {
	Joint         int
	Path          GLTFPath
	Interpolation GLTFInterpolation
	Times         []float32
	Values        [][4]float32 // Translation uses the first three components
}

// GLTFAnimation is a named set of channels.
type GLTFAnimation struct {
	Name     string
	Channels []GLTFChannel
}

// GLTFSkin is the skeleton and animation data extracted from a glTF document.
type GLTFSkin struct {
	Name       string
	Joints     []GLTFJoint
	Animations []GLTFAnimation
}

// LoadGLTFSkin opens a .gltf or .glb file and extracts its first skin.
func LoadGLTFSkin(path string) (*GLTFSkin, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening glTF file: %w", err)
	}
	return ExtractGLTFSkin(doc)
}

// ExtractGLTFSkin extracts the first skin of doc and every animation channel
// targeting its joints. Only node TRS properties are read; node matrices are
// ignored.
func ExtractGLTFSkin(doc *gltf.Document) (*GLTFSkin, error) {
	if len(doc.Skins) == 0 {
		return nil, ErrNoSkin
	}
	skin := doc.Skins[0]

	parentNode := make([]int, len(doc.Nodes))
	for i := range parentNode {
		parentNode[i] = -1
	}
	for ni, node := range doc.Nodes {
		for _, c := range node.Children {
			if int(c) >= len(parentNode) {
				return nil, fmt.Errorf("%w: node %d child %d", ErrInvalidGLTFIndex, ni, c)
			}
			parentNode[c] = ni
		}
	}

	out := &GLTFSkin{Name: skin.Name, Joints: make([]GLTFJoint, len(skin.Joints))}
	nodeToJoint := make(map[int]int, len(skin.Joints))
	for ji, n := range skin.Joints {
		if int(n) >= len(doc.Nodes) {
			return nil, fmt.Errorf("%w: skin joint %d node %d", ErrInvalidGLTFIndex, ji, n)
		}
		nodeToJoint[int(n)] = ji
	}

	var ibm [][4][4]float32
	if skin.InverseBindMatrices != nil {
		var err error
		if ibm, err = readAccessor[[4][4]float32](doc, *skin.InverseBindMatrices, gltf.AccessorMat4); err != nil {
			return nil, fmt.Errorf("inverse bind matrices: %w", err)
		}
		if len(ibm) < len(skin.Joints) {
			return nil, fmt.Errorf("%w: %d inverse bind matrices for %d joints", ErrTruncatedGLTFData, len(ibm), len(skin.Joints))
		}
	}

	for ji, n := range skin.Joints {
		node := doc.Nodes[int(n)]
		j := GLTFJoint{
			Name:   node.Name,
			Node:   int(n),
			Parent: -1,
			Translation: [3]float32{
				float32(node.Translation[0]), float32(node.Translation[1]), float32(node.Translation[2]),
			},
			Rotation: [4]float32{
				float32(node.Rotation[0]), float32(node.Rotation[1]), float32(node.Rotation[2]), float32(node.Rotation[3]),
			},
		}
		if j.Rotation == [4]float32{} {
			j.Rotation[3] = 1
		}
		if ibm != nil {
			// modeler yields [row][col]; InverseBind is column-major
			for row := range 4 {
				for col := range 4 {
					j.InverseBind[col*4+row] = ibm[ji][row][col]
				}
			}
		} else {
			j.InverseBind = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
		}

		// Nearest ancestor that is part of the skin
		for p := parentNode[int(n)]; p >= 0; p = parentNode[p] {
			if pj, ok := nodeToJoint[p]; ok {
				j.Parent = pj
				break
			}
		}
		out.Joints[ji] = j
	}
	for ji, j := range out.Joints {
		if j.Parent >= 0 {
			out.Joints[j.Parent].Children = append(out.Joints[j.Parent].Children, ji)
		}
	}

	for ai, anim := range doc.Animations {
		a := GLTFAnimation{Name: anim.Name}
		if a.Name == "" {
			a.Name = fmt.Sprintf("animation%d", ai)
		}

		for ci, ch := range anim.Channels {
			if ch.Target.Node == nil {
				continue
			}
			joint, ok := nodeToJoint[int(*ch.Target.Node)]
			if !ok {
				continue
			}

			var path GLTFPath
			switch ch.Target.Path {
			case gltf.TRSTranslation:
				path = GLTFPathTranslation
			case gltf.TRSRotation:
				path = GLTFPathRotation
			default:
				continue
			}

			channel, err := readGLTFChannel(doc, anim, ch, path)
			if err != nil {
				return nil, fmt.Errorf("animation %q channel %d: %w", a.Name, ci, err)
			}
			channel.Joint = joint
			channel.Path = path
			a.Channels = append(a.Channels, channel)
		}

		out.Animations = append(out.Animations, a)
	}

	return out, nil
}

func readGLTFChannel(doc *gltf.Document, anim *gltf.Animation, ch *gltf.Channel, path GLTFPath) (GLTFChannel, error) {
	var out GLTFChannel

	if ch.Sampler == nil || int(*ch.Sampler) >= len(anim.Samplers) {
		return out, fmt.Errorf("%w: sampler", ErrInvalidGLTFIndex)
	}
	sampler := anim.Samplers[*ch.Sampler]

	switch sampler.Interpolation {
	case gltf.InterpolationStep:
		out.Interpolation = GLTFInterpolationStep
	case gltf.InterpolationCubicSpline:
		out.Interpolation = GLTFInterpolationCubicSpline
	default:
		out.Interpolation = GLTFInterpolationLinear
	}

	times, err := readAccessor[float32](doc, sampler.Input, gltf.AccessorScalar)
	if err != nil {
		return out, fmt.Errorf("times: %w", err)
	}

	var values [][4]float32
	if path == GLTFPathTranslation {
		vec3, err := readAccessor[[3]float32](doc, sampler.Output, gltf.AccessorVec3)
		if err != nil {
			return out, fmt.Errorf("values: %w", err)
		}
		values = make([][4]float32, len(vec3))
		for i, v := range vec3 {
			values[i] = [4]float32{v[0], v[1], v[2], 0}
		}
	} else if values, err = readAccessor[[4]float32](doc, sampler.Output, gltf.AccessorVec4); err != nil {
		return out, fmt.Errorf("values: %w", err)
	}

	// Cubic spline outputs are (in-tangent, point, out-tangent) triples
	perKey, offset := 1, 0
	if out.Interpolation == GLTFInterpolationCubicSpline {
		perKey, offset = 3, 1
	}
	if len(values) < len(times)*perKey {
		return out, fmt.Errorf("%w: %d keys, %d values", ErrTruncatedGLTFData, len(times), len(values))
	}

	out.Times = times
	out.Values = make([][4]float32, len(times))
	for k := range times {
		out.Values[k] = values[k*perKey+offset]
	}
	return out, nil
}

// readAccessor decodes a float accessor of type typ. Accessors without a
// buffer view or sparse data read as zeros.
func readAccessor[T float32 | [3]float32 | [4]float32 | [4][4]float32](doc *gltf.Document, idx uint32, typ gltf.AccessorType) ([]T, error) {
	if int(idx) >= len(doc.Accessors) {
		return nil, fmt.Errorf("%w: accessor %d", ErrInvalidGLTFIndex, idx)
	}
	acc := doc.Accessors[idx]
	if acc.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("%w: accessor %d is not float", ErrUnsupportedAccessor, idx)
	}
	if acc.Type != typ {
		return nil, fmt.Errorf("%w: accessor %d is %s, want %s", ErrUnsupportedAccessor, idx, acc.Type, typ)
	}
	// modeler looks up the sparse values' stride by their byte offset
	if acc.Sparse != nil && int(acc.Sparse.Values.ByteOffset) >= len(doc.BufferViews) {
		return nil, fmt.Errorf("%w: accessor %d sparse values offset %d", ErrUnsupportedAccessor, idx, acc.Sparse.Values.ByteOffset)
	}

	data, err := modeler.ReadAccessor(doc, acc, make([]T, acc.Count))
	if err != nil {
		return nil, fmt.Errorf("%w: accessor %d: %w", ErrTruncatedGLTFData, idx, err)
	}
	if data == nil {
		return make([]T, acc.Count), nil
	}
	out, ok := data.([]T)
	if !ok {
		return nil, fmt.Errorf("%w: accessor %d decoded as %T", ErrUnsupportedAccessor, idx, data)
	}
	return out, nil
}
