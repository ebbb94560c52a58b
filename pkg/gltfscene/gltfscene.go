// Package gltfscene loads glTF documents as exportable stages: node
// transforms are applied to geometry, PBR materials map to the legacy
// shading models, skins become joint rigs and the first animation clip
// becomes joint keyframes.
package gltfscene

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/threexport/pkg/math"
	"github.com/Faultbox/threexport/pkg/scene"
	"github.com/Faultbox/threexport/pkg/threejs"
)

// ErrUnsupportedPrimitive reports a primitive the converter cannot express.
var ErrUnsupportedPrimitive = errors.New("unsupported primitive")

// ErrBadSkin reports skin data referencing joints outside its joint list.
var ErrBadSkin = errors.New("malformed skin")

// DefaultSampleRate is the frame rate animations are resampled at when the
// loader is not given one.
const DefaultSampleRate = 30

// Loader converts glTF documents to stages.
type Loader struct {
	// SampleRate converts animation key times in seconds to frames.
	// Zero selects DefaultSampleRate.
	SampleRate float64

	// Logger receives progress events. nil disables logging.
	Logger *zap.Logger
}

// LoadFile reads a .gltf or .glb file and converts it. Texture paths
// resolve relative to the document's directory.
func (l *Loader) LoadFile(path string) (*scene.Stage, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return l.Load(doc, filepath.Dir(path))
}

// Load converts a decoded document. baseDir anchors relative texture URIs.
func (l *Loader) Load(doc *gltf.Document, baseDir string) (*scene.Stage, error) {
	log := l.Logger
	if log == nil {
		log = zap.NewNop()
	}
	rate := l.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	b := &build{
		doc:          doc,
		log:          log,
		rate:         rate,
		baseDir:      baseDir,
		nodes:        newNodeTable(doc),
		materialName: make([]string, len(doc.Materials)),
		jointName:    map[uint32]string{},
	}

	tracks, last, err := b.collectTracks()
	if err != nil {
		return nil, err
	}
	b.stage = scene.NewStage(0, last*rate, threejs.RateName(rate))

	log.Info("converting materials", zap.Int("count", len(doc.Materials)))
	b.materials()
	log.Info("converting joints", zap.Int("skins", len(doc.Skins)))
	b.joints(tracks)
	log.Info("converting meshes", zap.Int("nodes", len(doc.Nodes)))
	if err := b.meshes(); err != nil {
		return nil, err
	}
	return b.stage, nil
}

// build accumulates one conversion run.
type build struct {
	doc     *gltf.Document
	log     *zap.Logger
	rate    float64
	baseDir string

	nodes        *nodeTable
	materialName []string
	jointName    map[uint32]string
	stage        *scene.Stage
}

// joints flattens every skin's joint list into the stage rig. A joint's
// parent link survives only when the parent node is itself a joint.
func (b *build) joints(tracks map[uint32]*nodeTrack) {
	order := []uint32{}
	for _, skin := range b.doc.Skins {
		for _, idx := range skin.Joints {
			if _, seen := b.jointName[idx]; seen {
				continue
			}
			name := b.doc.Nodes[idx].Name
			if name == "" {
				name = fmt.Sprintf("joint_%d", idx)
			}
			b.jointName[idx] = name
			order = append(order, idx)
		}
	}

	for _, idx := range order {
		node := b.doc.Nodes[idx]
		restT, restR := nodeTRS(node)

		parent := ""
		if p := b.nodes.parents[idx]; p != -1 {
			parent = b.jointName[uint32(p)]
		}

		b.stage.AddJoint(scene.StageJoint{
			Name:        b.jointName[idx],
			Parent:      parent,
			Translation: restT,
			Rotation:    restR,
			Keys:        jointKeys(tracks[idx], b.rate, restT, restR),
		})
	}
}

func (b *build) meshes() error {
	for iNode, node := range b.doc.Nodes {
		if node.Mesh == nil {
			continue
		}
		mesh := b.doc.Meshes[*node.Mesh]

		// Skinned geometry is authored in bind space and carries its
		// node transform through the joints instead.
		world := mgl32.Ident4()
		var influences []string
		if node.Skin != nil {
			for _, j := range b.doc.Skins[*node.Skin].Joints {
				influences = append(influences, b.jointName[j])
			}
		} else {
			world = b.nodes.global(iNode)
		}

		for iPrim, prim := range mesh.Primitives {
			name := meshName(node, mesh, iNode)
			if len(mesh.Primitives) > 1 {
				name = fmt.Sprintf("%s_%d", name, iPrim)
			}
			if prim.Mode != gltf.PrimitiveTriangles {
				b.log.Warn("skipping non-triangle primitive", zap.String("mesh", name))
				continue
			}
			b.log.Debug("converting primitive", zap.String("mesh", name))

			sm, err := b.primitive(prim, name, world, influences)
			if err != nil {
				return err
			}
			b.stage.AddMesh(sm)
		}
	}
	return nil
}

// primitive converts one triangle primitive into a stage mesh.
func (b *build) primitive(prim *gltf.Primitive, name string, world mgl32.Mat4, influences []string) (scene.StageMesh, error) {
	posAcc, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return scene.StageMesh{}, fmt.Errorf("%w: %q has no positions", ErrUnsupportedPrimitive, name)
	}

	positions, err := modeler.ReadPosition(b.doc, b.doc.Accessors[posAcc], nil)
	if err != nil {
		return scene.StageMesh{}, fmt.Errorf("reading %q positions: %w", name, err)
	}
	verts := make([]math.Vec3, len(positions))
	for i, p := range positions {
		wp := mgl32.TransformCoordinate(mgl32.Vec3{p[0], p[1], p[2]}, world)
		verts[i] = math.Vec3{X: float64(wp[0]), Y: float64(wp[1]), Z: float64(wp[2])}
	}

	sm := scene.StageMesh{Name: name, Vertices: verts}
	if prim.Material != nil {
		sm.Material = b.materialName[*prim.Material]
	}

	var hasNormals, hasUVs bool
	if acc, ok := prim.Attributes[gltf.NORMAL]; ok {
		normals, err := modeler.ReadNormal(b.doc, b.doc.Accessors[acc], nil)
		if err != nil {
			return scene.StageMesh{}, fmt.Errorf("reading %q normals: %w", name, err)
		}
		hasNormals = true
		sm.Normals = make([]math.Vec3, len(normals))
		for i, n := range normals {
			wn := mgl32.TransformNormal(mgl32.Vec3{n[0], n[1], n[2]}, world)
			sm.Normals[i] = math.Vec3{X: float64(wn[0]), Y: float64(wn[1]), Z: float64(wn[2])}.Normalize()
		}
	}
	if acc, ok := prim.Attributes[gltf.TANGENT]; ok && hasNormals {
		tangents, err := modeler.ReadTangent(b.doc, b.doc.Accessors[acc], nil)
		if err != nil {
			return scene.StageMesh{}, fmt.Errorf("reading %q tangents: %w", name, err)
		}
		sm.Tangents = make([]math.Vec3, len(tangents))
		sm.Binormals = make([]math.Vec3, len(tangents))
		for i, t := range tangents {
			wt := mgl32.TransformNormal(mgl32.Vec3{t[0], t[1], t[2]}, world)
			tangent := math.Vec3{X: float64(wt[0]), Y: float64(wt[1]), Z: float64(wt[2])}.Normalize()
			sm.Tangents[i] = tangent
			if i < len(sm.Normals) {
				sm.Binormals[i] = sm.Normals[i].Cross(tangent).Scale(float64(t[3]))
			}
		}
	}
	if acc, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		coords, err := modeler.ReadTextureCoord(b.doc, b.doc.Accessors[acc], nil)
		if err != nil {
			return scene.StageMesh{}, fmt.Errorf("reading %q uvs: %w", name, err)
		}
		hasUVs = true
		sm.U = make([]float64, len(coords))
		sm.V = make([]float64, len(coords))
		for i, uv := range coords {
			sm.U[i] = float64(uv[0])
			sm.V[i] = 1 - float64(uv[1])
		}
	}

	indices, err := b.triangleIndices(prim, len(positions))
	if err != nil {
		return scene.StageMesh{}, fmt.Errorf("reading %q indices: %w", name, err)
	}
	for i := 0; i+2 < len(indices); i += 3 {
		corners := []int{int(indices[i]), int(indices[i+1]), int(indices[i+2])}
		face := scene.Face{Vertices: corners}
		if hasUVs {
			face.UVs = corners
		}
		if hasNormals {
			face.Normals = corners
		}
		sm.Faces = append(sm.Faces, face)
	}

	if len(influences) > 0 {
		skin, err := b.primitiveSkin(prim, name, len(positions), influences)
		if err != nil {
			return scene.StageMesh{}, err
		}
		sm.Skin = skin
	}
	return sm, nil
}

// primitiveSkin turns the per-vertex joint and weight attributes into a
// weight table over the skin's joint list.
func (b *build) primitiveSkin(prim *gltf.Primitive, name string, vertexCount int, influences []string) (*scene.Skin, error) {
	jointAcc, hasJoints := prim.Attributes[gltf.JOINTS_0]
	weightAcc, hasWeights := prim.Attributes[gltf.WEIGHTS_0]
	if !hasJoints || !hasWeights {
		return nil, nil
	}

	joints, err := modeler.ReadJoints(b.doc, b.doc.Accessors[jointAcc], nil)
	if err != nil {
		return nil, fmt.Errorf("reading %q joints: %w", name, err)
	}
	weights, err := modeler.ReadWeights(b.doc, b.doc.Accessors[weightAcc], nil)
	if err != nil {
		return nil, fmt.Errorf("reading %q weights: %w", name, err)
	}
	if len(joints) < vertexCount || len(weights) < vertexCount {
		return nil, fmt.Errorf("%w: %q has %d vertices but %d joint and %d weight entries",
			ErrBadSkin, name, vertexCount, len(joints), len(weights))
	}

	rows := make([][]float64, vertexCount)
	for i := range rows {
		row := make([]float64, len(influences))
		for k := 0; k < 4; k++ {
			w := weights[i][k]
			if w <= 0 {
				continue
			}
			j := int(joints[i][k])
			if j >= len(row) {
				return nil, fmt.Errorf("%w: %q vertex %d references joint %d of %d",
					ErrBadSkin, name, i, j, len(influences))
			}
			row[j] += float64(w)
		}
		rows[i] = row
	}
	return &scene.Skin{Influences: influences, Weights: rows}, nil
}

// triangleIndices returns the primitive's index list, synthesizing a
// sequential one for non-indexed geometry.
func (b *build) triangleIndices(prim *gltf.Primitive, vertexCount int) ([]uint32, error) {
	if prim.Indices == nil {
		indices := make([]uint32, vertexCount)
		for i := range indices {
			indices[i] = uint32(i)
		}
		return indices, nil
	}
	return modeler.ReadIndices(b.doc, b.doc.Accessors[*prim.Indices], nil)
}

// nodeTable resolves node parenthood and world transforms.
type nodeTable struct {
	doc     *gltf.Document
	parents []int
	globals []mgl32.Mat4
	have    []bool
}

func newNodeTable(doc *gltf.Document) *nodeTable {
	parents := make([]int, len(doc.Nodes))
	for i := range parents {
		parents[i] = -1
	}
	for i, node := range doc.Nodes {
		for _, child := range node.Children {
			parents[child] = i
		}
	}
	return &nodeTable{
		doc:     doc,
		parents: parents,
		globals: make([]mgl32.Mat4, len(doc.Nodes)),
		have:    make([]bool, len(doc.Nodes)),
	}
}

// global returns a node's world transform, composing ancestors on demand.
func (t *nodeTable) global(i int) mgl32.Mat4 {
	if t.have[i] {
		return t.globals[i]
	}
	m := localMatrix(t.doc.Nodes[i])
	if p := t.parents[i]; p != -1 {
		m = t.global(p).Mul4(m)
	}
	t.globals[i] = m
	t.have[i] = true
	return m
}

// localMatrix returns a node's local transform, preferring the explicit
// matrix form over the decomposed one. Zero values in either form stand for
// their glTF defaults, so documents built in memory behave like decoded
// ones.
func localMatrix(node *gltf.Node) mgl32.Mat4 {
	if m := mgl32.Mat4(node.Matrix); m != mgl32.Ident4() && m != (mgl32.Mat4{}) {
		return m
	}
	rot := nodeRotation(node)
	scale := nodeScale(node)
	q := mgl32.Quat{W: rot[3], V: mgl32.Vec3{rot[0], rot[1], rot[2]}}
	return mgl32.Translate3D(node.Translation[0], node.Translation[1], node.Translation[2]).
		Mul4(q.Mat4()).
		Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))
}

// nodeTRS extracts a node's local translation and rotation, decomposing the
// matrix form when that is what the node carries.
func nodeTRS(node *gltf.Node) (math.Vec3, math.Quat) {
	if m := mgl32.Mat4(node.Matrix); m != mgl32.Ident4() && m != (mgl32.Mat4{}) {
		pos := m.Col(3)
		q := mgl32.Mat4ToQuat(m)
		return vec3([3]float32{pos[0], pos[1], pos[2]}),
			quat([4]float32{q.V[0], q.V[1], q.V[2], q.W})
	}
	return vec3(node.Translation), quat(nodeRotation(node))
}

func nodeRotation(node *gltf.Node) [4]float32 {
	if node.Rotation == ([4]float32{}) {
		return [4]float32{0, 0, 0, 1}
	}
	return node.Rotation
}

func nodeScale(node *gltf.Node) [3]float32 {
	if node.Scale == ([3]float32{}) {
		return [3]float32{1, 1, 1}
	}
	return node.Scale
}

func meshName(node *gltf.Node, mesh *gltf.Mesh, iNode int) string {
	if node.Name != "" {
		return node.Name
	}
	if mesh.Name != "" {
		return mesh.Name
	}
	return fmt.Sprintf("mesh_%d", iNode)
}
