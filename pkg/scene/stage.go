package scene

import (
	"sort"

	"github.com/Faultbox/threexport/pkg/math"
)

// Stage is an in-memory scene: recorded geometry, materials, a joint rig and
// a timeline. Meshes and joints answer time-dependent queries from recorded
// samples and keyframes. Stage implements Scene.
type Stage struct {
	tl        *timeline
	meshes    []*stageMesh
	materials []*stageMaterial
	joints    []*stageJoint
}

// NewStage creates an empty stage with the given playback range and symbolic
// frame rate. The current frame starts at first.
func NewStage(first, last float64, rate string) *Stage {
	return &Stage{tl: &timeline{first: first, last: last, rate: rate, frame: first}}
}

// Meshes returns the stage's meshes in the order they were added.
func (s *Stage) Meshes() []Mesh {
	out := make([]Mesh, len(s.meshes))
	for i, m := range s.meshes {
		out[i] = m
	}
	return out
}

// Materials returns the stage's materials in the order they were added.
func (s *Stage) Materials() []Material {
	out := make([]Material, len(s.materials))
	for i, m := range s.materials {
		out[i] = m
	}
	return out
}

// Joints returns the stage's joints in the order they were added.
func (s *Stage) Joints() []Joint {
	out := make([]Joint, len(s.joints))
	for i, j := range s.joints {
		out[i] = j
	}
	return out
}

// Playback returns the stage's timeline.
func (s *Stage) Playback() Playback {
	return s.tl
}

// AddMesh records a mesh on the stage. Vertex samples are kept sorted by
// frame.
func (s *Stage) AddMesh(m StageMesh) {
	sort.Slice(m.Samples, func(i, j int) bool { return m.Samples[i].Frame < m.Samples[j].Frame })
	s.meshes = append(s.meshes, &stageMesh{data: m, tl: s.tl})
}

// AddMaterial records a material on the stage.
func (s *Stage) AddMaterial(m StageMaterial) {
	s.materials = append(s.materials, &stageMaterial{data: m})
}

// AddJoint records a joint on the stage. Zero-valued rotations are promoted
// to the identity quaternion and keys are kept sorted by frame.
func (s *Stage) AddJoint(j StageJoint) {
	if j.Rotation == (math.Quat{}) {
		j.Rotation = math.QuatIdentity()
	}
	if j.Orientation == (math.Quat{}) {
		j.Orientation = math.QuatIdentity()
	}
	for i := range j.Keys {
		if j.Keys[i].Rotation == (math.Quat{}) {
			j.Keys[i].Rotation = math.QuatIdentity()
		}
	}
	sort.Slice(j.Keys, func(a, b int) bool { return j.Keys[a].Frame < j.Keys[b].Frame })
	s.joints = append(s.joints, &stageJoint{data: j, tl: s.tl})
}

// timeline implements Playback for a Stage.
type timeline struct {
	first, last float64
	rate        string
	frame       float64
	bindPose    bool
}

func (t *timeline) Range() (float64, float64) { return t.first, t.last }
func (t *timeline) FrameRate() string         { return t.rate }
func (t *timeline) Frame() float64            { return t.frame }

func (t *timeline) SetFrame(frame float64) {
	t.frame = frame
	t.bindPose = false
}

func (t *timeline) GoToBindPose() {
	t.bindPose = true
}

// StageMesh describes one mesh added to a Stage. Vertices is the bind-pose
// geometry; Samples, when present, provide per-frame vertex positions for
// playback sampling.
type StageMesh struct {
	Name      string
	Material  string
	Vertices  []math.Vec3
	Faces     []Face
	Normals   []math.Vec3
	Tangents  []math.Vec3
	Binormals []math.Vec3
	U, V      []float64
	Skin      *Skin
	Samples   []VertexSample
}

// VertexSample is a full vertex position snapshot at one frame.
type VertexSample struct {
	Frame  float64
	Points []math.Vec3
}

type stageMesh struct {
	data StageMesh
	tl   *timeline
}

func (m *stageMesh) Name() string           { return m.data.Name }
func (m *stageMesh) Material() string       { return m.data.Material }
func (m *stageMesh) Faces() []Face          { return m.data.Faces }
func (m *stageMesh) Normals() []math.Vec3   { return m.data.Normals }
func (m *stageMesh) Tangents() []math.Vec3  { return m.data.Tangents }
func (m *stageMesh) Binormals() []math.Vec3 { return m.data.Binormals }
func (m *stageMesh) Skin() *Skin            { return m.data.Skin }

func (m *stageMesh) UVs() ([]float64, []float64) { return m.data.U, m.data.V }

// Points returns the latest vertex sample at or before the current frame,
// falling back to the bind-pose vertices when none applies.
func (m *stageMesh) Points() []math.Vec3 {
	if m.tl.bindPose {
		return m.data.Vertices
	}
	points := m.data.Vertices
	for i := range m.data.Samples {
		if m.data.Samples[i].Frame > m.tl.frame {
			break
		}
		points = m.data.Samples[i].Points
	}
	return points
}

// StageMaterial describes one material added to a Stage.
type StageMaterial struct {
	Name          string
	Model         string
	Color         Color
	DiffuseCoeff  float64
	Ambient       Color
	Transparency  float64
	Specular      *Specular
	Incandescence *Color
	Maps          map[MapKind]TextureMap
}

type stageMaterial struct {
	data StageMaterial
}

func (m *stageMaterial) Name() string          { return m.data.Name }
func (m *stageMaterial) ShadingModel() string  { return m.data.Model }
func (m *stageMaterial) Color() Color          { return m.data.Color }
func (m *stageMaterial) DiffuseCoeff() float64 { return m.data.DiffuseCoeff }
func (m *stageMaterial) Ambient() Color        { return m.data.Ambient }
func (m *stageMaterial) Transparency() float64 { return m.data.Transparency }
func (m *stageMaterial) Specular() *Specular   { return m.data.Specular }
func (m *stageMaterial) Incandescence() *Color { return m.data.Incandescence }

func (m *stageMaterial) Map(kind MapKind) *TextureMap {
	tm, ok := m.data.Maps[kind]
	if !ok {
		return nil
	}
	return &tm
}

// StageJoint describes one joint added to a Stage. Translation and Rotation
// are the rest pose; Keys, when present, drive playback sampling.
type StageJoint struct {
	Name        string
	Parent      string
	Translation math.Vec3
	Rotation    math.Quat
	Orientation math.Quat
	Keys        []JointKey
}

// JointKey is an authored keyframe on a joint.
type JointKey struct {
	Frame       float64
	Translation math.Vec3
	Rotation    math.Quat
}

type stageJoint struct {
	data StageJoint
	tl   *timeline
}

func (j *stageJoint) Name() string           { return j.data.Name }
func (j *stageJoint) Parent() string         { return j.data.Parent }
func (j *stageJoint) Orientation() math.Quat { return j.data.Orientation }

func (j *stageJoint) KeyTimes() []float64 {
	times := make([]float64, len(j.data.Keys))
	for i, k := range j.data.Keys {
		times[i] = k.Frame
	}
	return times
}

// Translation returns the joint's local translation at the current frame.
func (j *stageJoint) Translation() math.Vec3 {
	if j.tl.bindPose || len(j.data.Keys) == 0 {
		return j.data.Translation
	}
	k0, k1, t := j.sample()
	return math.LerpVec3(k0.Translation, k1.Translation, t)
}

// Rotation returns the joint's local rotation at the current frame.
func (j *stageJoint) Rotation() math.Quat {
	if j.tl.bindPose || len(j.data.Keys) == 0 {
		return j.data.Rotation
	}
	k0, k1, t := j.sample()
	return k0.Rotation.Slerp(k1.Rotation, t)
}

// sample finds the keys surrounding the current frame (assuming keys are
// sorted by frame) and the interpolation factor between them. Frames outside
// the keyed range clamp to the nearest key.
func (j *stageJoint) sample() (JointKey, JointKey, float64) {
	keys := j.data.Keys
	frame := j.tl.frame

	var prev, next int
	for i := range keys {
		if keys[i].Frame > frame {
			next = i
			break
		}
		prev = i
		next = i
	}

	if prev == next {
		return keys[prev], keys[prev], 0
	}

	k0 := keys[prev]
	k1 := keys[next]
	t := 0.0
	if k1.Frame != k0.Frame {
		t = (frame - k0.Frame) / (k1.Frame - k0.Frame)
	}
	return k0, k1, t
}
