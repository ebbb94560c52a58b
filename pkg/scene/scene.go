// Package scene defines the read-only view of a 3D scene that an exporter
// walks: meshes, materials, a joint rig and playback control. The Stage type
// is the in-memory implementation behind stage files and format converters.
package scene

import "github.com/Faultbox/threexport/pkg/math"

// Shading model tags reported by Material.ShadingModel.
const (
	ShadingLambert = "Lambert"
	ShadingPhong   = "Phong"
	ShadingBlinn   = "Blinn"
)

// MapKind identifies a texture channel on a material.
type MapKind int

const (
	MapDiffuse MapKind = iota
	MapSpecular
	MapGloss
	MapBump
	MapIncandescence
)

// String returns the channel name.
func (k MapKind) String() string {
	switch k {
	case MapDiffuse:
		return "Diffuse"
	case MapSpecular:
		return "Specular"
	case MapGloss:
		return "Gloss"
	case MapBump:
		return "Bump"
	case MapIncandescence:
		return "Incandescence"
	}
	return "Unknown"
}

// MapKinds lists every texture channel in a fixed order.
var MapKinds = []MapKind{MapDiffuse, MapSpecular, MapGloss, MapBump, MapIncandescence}

// Color is an RGB triple in the host's working space.
type Color struct {
	R, G, B float64
}

// Specular carries the reflective response of shading models that have one.
type Specular struct {
	Color    Color
	CosPower float64
}

// TextureMap is a file texture connected to a material channel.
type TextureMap struct {
	// File is the source path as the host records it.
	File string

	// ColorGain scales the sampled texture color.
	ColorGain Color

	// DefaultColor is the file node's fallback color, when authored.
	DefaultColor *Color
}

// Face is a single polygon of a mesh. Vertices holds 3 or 4 corner indices
// into the mesh's vertex list; UVs and Normals, when present, hold one index
// per corner. Material names the material the face is bound to; an empty name
// falls back to the mesh-level binding.
type Face struct {
	Vertices []int
	UVs      []int
	Normals  []int
	Material string
}

// Skin binds the vertices of a mesh to the joints deforming them.
// Weights is indexed [vertex][influence], parallel to Influences.
type Skin struct {
	Influences []string
	Weights    [][]float64
}

// Scene is a read-only snapshot-style view of a host scene. Mesh and joint
// queries that depend on time reflect the playback state set through
// Playback.
type Scene interface {
	// Meshes enumerates the scene's meshes in traversal order.
	Meshes() []Mesh

	// Materials enumerates the scene's materials.
	Materials() []Material

	// Joints enumerates the scene's joints in traversal order.
	Joints() []Joint

	// Playback exposes the scene's timeline.
	Playback() Playback
}

// Mesh is one polygonal object of a scene.
type Mesh interface {
	// Name returns the mesh name.
	Name() string

	// Material names the mesh-level material binding, "" if none.
	Material() string

	// Points returns world-space vertex positions at the current frame.
	Points() []math.Vec3

	// Faces returns the mesh's polygons.
	Faces() []Face

	// Normals returns the mesh's unique normal vectors.
	Normals() []math.Vec3

	// Tangents returns the mesh's tangent vectors.
	Tangents() []math.Vec3

	// Binormals returns the mesh's binormal vectors.
	Binormals() []math.Vec3

	// UVs returns the mesh's texture coordinates as parallel u and v slices.
	UVs() (u, v []float64)

	// Skin returns the mesh's skin binding, nil when unskinned.
	Skin() *Skin
}

// Material is one shading node of a scene.
type Material interface {
	// Name returns the material name, the join key faces reference.
	Name() string

	// ShadingModel returns the model tag (ShadingLambert, ShadingPhong, ...).
	ShadingModel() string

	// Color returns the base diffuse color.
	Color() Color

	// DiffuseCoeff returns the diffuse reflectivity coefficient.
	DiffuseCoeff() float64

	// Ambient returns the ambient color.
	Ambient() Color

	// Transparency returns the transparency scalar.
	Transparency() float64

	// Specular returns the specular response, nil for models without one.
	Specular() *Specular

	// Incandescence returns the self-illumination color, nil when unset.
	Incandescence() *Color

	// Map returns the texture bound to a channel, nil when none.
	Map(kind MapKind) *TextureMap
}

// Joint is one bone of the scene's rig.
type Joint interface {
	// Name returns the joint name.
	Name() string

	// Parent names the parent joint, "" for a root.
	Parent() string

	// Translation returns the local translation at the current frame.
	Translation() math.Vec3

	// Rotation returns the local rotation at the current frame.
	Rotation() math.Quat

	// Orientation returns the static orient offset composed into exported
	// rotations.
	Orientation() math.Quat

	// KeyTimes returns the frames carrying authored keyframes, ascending.
	KeyTimes() []float64
}

// Playback drives and inspects the scene's timeline. SetFrame and
// GoToBindPose mutate host state and may be arbitrarily expensive.
type Playback interface {
	// Range returns the playback range in frames.
	Range() (first, last float64)

	// FrameRate returns the symbolic frame rate name ("ntsc", "film", ...).
	FrameRate() string

	// Frame returns the current frame.
	Frame() float64

	// SetFrame moves playback to a frame.
	SetFrame(frame float64)

	// GoToBindPose rests the rig in its bind pose until the next SetFrame.
	GoToBindPose()
}
