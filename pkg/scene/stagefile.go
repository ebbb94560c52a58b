package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/threexport/pkg/math"
)

// ErrStageFile reports a malformed stage file.
var ErrStageFile = errors.New("invalid stage file")

// stageFile is the YAML layout of a recorded scene snapshot.
type stageFile struct {
	Playback  playbackSpec   `yaml:"playback"`
	Meshes    []meshSpec     `yaml:"meshes"`
	Materials []materialSpec `yaml:"materials"`
	Joints    []jointSpec    `yaml:"joints"`
}

type playbackSpec struct {
	First float64 `yaml:"first"`
	Last  float64 `yaml:"last"`
	Rate  string  `yaml:"rate"`
}

type meshSpec struct {
	Name      string       `yaml:"name"`
	Material  string       `yaml:"material"`
	Vertices  [][]float64  `yaml:"vertices"`
	Faces     []faceSpec   `yaml:"faces"`
	Normals   [][]float64  `yaml:"normals"`
	Tangents  [][]float64  `yaml:"tangents"`
	Binormals [][]float64  `yaml:"binormals"`
	UVs       *uvSpec      `yaml:"uvs"`
	Skin      *skinSpec    `yaml:"skin"`
	Samples   []sampleSpec `yaml:"samples"`
}

type faceSpec struct {
	V        []int  `yaml:"v"`
	UV       []int  `yaml:"uv"`
	N        []int  `yaml:"n"`
	Material string `yaml:"material"`
}

type uvSpec struct {
	U []float64 `yaml:"u"`
	V []float64 `yaml:"v"`
}

type skinSpec struct {
	Influences []string    `yaml:"influences"`
	Weights    [][]float64 `yaml:"weights"`
}

type sampleSpec struct {
	Frame    float64     `yaml:"frame"`
	Vertices [][]float64 `yaml:"vertices"`
}

type materialSpec struct {
	Name          string             `yaml:"name"`
	Model         string             `yaml:"model"`
	Color         []float64          `yaml:"color"`
	Diffuse       *float64           `yaml:"diffuse"`
	Ambient       []float64          `yaml:"ambient"`
	Transparency  *float64           `yaml:"transparency"`
	Specular      *specularSpec      `yaml:"specular"`
	Incandescence []float64          `yaml:"incandescence"`
	Maps          map[string]mapSpec `yaml:"maps"`
}

type specularSpec struct {
	Color    []float64 `yaml:"color"`
	CosPower float64   `yaml:"cosPower"`
}

type mapSpec struct {
	File  string    `yaml:"file"`
	Gain  []float64 `yaml:"gain"`
	Color []float64 `yaml:"color"`
}

type jointSpec struct {
	Name        string    `yaml:"name"`
	Parent      string    `yaml:"parent"`
	Translation []float64 `yaml:"translation"`
	Rotation    []float64 `yaml:"rotation"`
	Orientation []float64 `yaml:"orientation"`
	Keys        []keySpec `yaml:"keys"`
}

type keySpec struct {
	Frame       float64   `yaml:"frame"`
	Translation []float64 `yaml:"translation"`
	Rotation    []float64 `yaml:"rotation"`
}

// LoadStageFile reads a stage snapshot from a YAML file. Texture paths are
// resolved relative to the file's directory.
func LoadStageFile(path string) (*Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stage file: %w", err)
	}
	return loadStage(data, filepath.Dir(path))
}

// LoadStage builds a stage from YAML stage-file content.
func LoadStage(data []byte) (*Stage, error) {
	return loadStage(data, "")
}

func loadStage(data []byte, baseDir string) (*Stage, error) {
	var sf stageFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStageFile, err)
	}

	rate := sf.Playback.Rate
	if rate == "" {
		rate = "film"
	}
	stage := NewStage(sf.Playback.First, sf.Playback.Last, rate)

	for i, m := range sf.Materials {
		mat, err := m.build(baseDir)
		if err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
		stage.AddMaterial(mat)
	}
	for i, m := range sf.Meshes {
		mesh, err := m.build()
		if err != nil {
			return nil, fmt.Errorf("mesh %d: %w", i, err)
		}
		stage.AddMesh(mesh)
	}
	for i, j := range sf.Joints {
		joint, err := j.build()
		if err != nil {
			return nil, fmt.Errorf("joint %d: %w", i, err)
		}
		stage.AddJoint(joint)
	}
	return stage, nil
}

func (m meshSpec) build() (StageMesh, error) {
	out := StageMesh{Name: m.Name, Material: m.Material}

	var err error
	if out.Vertices, err = vec3Slice(m.Vertices); err != nil {
		return out, fmt.Errorf("%w: mesh %q: vertices: %v", ErrStageFile, m.Name, err)
	}
	if out.Normals, err = vec3Slice(m.Normals); err != nil {
		return out, fmt.Errorf("%w: mesh %q: normals: %v", ErrStageFile, m.Name, err)
	}
	if out.Tangents, err = vec3Slice(m.Tangents); err != nil {
		return out, fmt.Errorf("%w: mesh %q: tangents: %v", ErrStageFile, m.Name, err)
	}
	if out.Binormals, err = vec3Slice(m.Binormals); err != nil {
		return out, fmt.Errorf("%w: mesh %q: binormals: %v", ErrStageFile, m.Name, err)
	}

	if m.UVs != nil {
		if len(m.UVs.U) != len(m.UVs.V) {
			return out, fmt.Errorf("%w: mesh %q: uvs: %d u values but %d v values",
				ErrStageFile, m.Name, len(m.UVs.U), len(m.UVs.V))
		}
		out.U, out.V = m.UVs.U, m.UVs.V
	}

	for i, f := range m.Faces {
		face := Face{Vertices: f.V, UVs: f.UV, Normals: f.N, Material: f.Material}
		for _, v := range face.Vertices {
			if v < 0 || v >= len(out.Vertices) {
				return out, fmt.Errorf("%w: mesh %q: face %d references vertex %d of %d",
					ErrStageFile, m.Name, i, v, len(out.Vertices))
			}
		}
		for _, uv := range face.UVs {
			if uv < 0 || uv >= len(out.U) {
				return out, fmt.Errorf("%w: mesh %q: face %d references uv %d of %d",
					ErrStageFile, m.Name, i, uv, len(out.U))
			}
		}
		for _, n := range face.Normals {
			if n < 0 || n >= len(out.Normals) {
				return out, fmt.Errorf("%w: mesh %q: face %d references normal %d of %d",
					ErrStageFile, m.Name, i, n, len(out.Normals))
			}
		}
		out.Faces = append(out.Faces, face)
	}

	if m.Skin != nil {
		if len(m.Skin.Weights) != len(out.Vertices) {
			return out, fmt.Errorf("%w: mesh %q: skin has %d weight rows for %d vertices",
				ErrStageFile, m.Name, len(m.Skin.Weights), len(out.Vertices))
		}
		for i, row := range m.Skin.Weights {
			if len(row) != len(m.Skin.Influences) {
				return out, fmt.Errorf("%w: mesh %q: skin weight row %d has %d entries, want %d",
					ErrStageFile, m.Name, i, len(row), len(m.Skin.Influences))
			}
		}
		out.Skin = &Skin{Influences: m.Skin.Influences, Weights: m.Skin.Weights}
	}

	for _, s := range m.Samples {
		points, err := vec3Slice(s.Vertices)
		if err != nil {
			return out, fmt.Errorf("%w: mesh %q: sample at frame %v: %v", ErrStageFile, m.Name, s.Frame, err)
		}
		if len(points) != len(out.Vertices) {
			return out, fmt.Errorf("%w: mesh %q: sample at frame %v has %d vertices, want %d",
				ErrStageFile, m.Name, s.Frame, len(points), len(out.Vertices))
		}
		out.Samples = append(out.Samples, VertexSample{Frame: s.Frame, Points: points})
	}

	return out, nil
}

func (m materialSpec) build(baseDir string) (StageMaterial, error) {
	out := StageMaterial{
		Name:         m.Name,
		Model:        m.Model,
		DiffuseCoeff: 1,
		Transparency: 1,
	}
	if out.Model == "" {
		out.Model = ShadingLambert
	}
	if m.Diffuse != nil {
		out.DiffuseCoeff = *m.Diffuse
	}
	if m.Transparency != nil {
		out.Transparency = *m.Transparency
	}

	var err error
	if out.Color, err = colorValue(m.Color, Color{0.5, 0.5, 0.5}); err != nil {
		return out, fmt.Errorf("%w: material %q: color: %v", ErrStageFile, m.Name, err)
	}
	if out.Ambient, err = colorValue(m.Ambient, Color{}); err != nil {
		return out, fmt.Errorf("%w: material %q: ambient: %v", ErrStageFile, m.Name, err)
	}

	if m.Specular != nil {
		color, err := colorValue(m.Specular.Color, Color{1, 1, 1})
		if err != nil {
			return out, fmt.Errorf("%w: material %q: specular: %v", ErrStageFile, m.Name, err)
		}
		out.Specular = &Specular{Color: color, CosPower: m.Specular.CosPower}
	}
	if m.Incandescence != nil {
		color, err := colorValue(m.Incandescence, Color{})
		if err != nil {
			return out, fmt.Errorf("%w: material %q: incandescence: %v", ErrStageFile, m.Name, err)
		}
		out.Incandescence = &color
	}

	for name, spec := range m.Maps {
		kind, ok := mapKindFromName(name)
		if !ok {
			return out, fmt.Errorf("%w: material %q: unknown map kind %q", ErrStageFile, m.Name, name)
		}
		if spec.File == "" {
			return out, fmt.Errorf("%w: material %q: %s map has no file", ErrStageFile, m.Name, name)
		}
		tm := TextureMap{File: spec.File}
		if baseDir != "" && !filepath.IsAbs(tm.File) {
			tm.File = filepath.Join(baseDir, tm.File)
		}
		if tm.ColorGain, err = colorValue(spec.Gain, Color{1, 1, 1}); err != nil {
			return out, fmt.Errorf("%w: material %q: %s map gain: %v", ErrStageFile, m.Name, name, err)
		}
		if spec.Color != nil {
			color, err := colorValue(spec.Color, Color{})
			if err != nil {
				return out, fmt.Errorf("%w: material %q: %s map color: %v", ErrStageFile, m.Name, name, err)
			}
			tm.DefaultColor = &color
		}
		if out.Maps == nil {
			out.Maps = make(map[MapKind]TextureMap)
		}
		out.Maps[kind] = tm
	}

	return out, nil
}

func (j jointSpec) build() (StageJoint, error) {
	out := StageJoint{Name: j.Name, Parent: j.Parent}

	var err error
	if out.Translation, err = vec3Value(j.Translation); err != nil {
		return out, fmt.Errorf("%w: joint %q: translation: %v", ErrStageFile, j.Name, err)
	}
	if out.Rotation, err = quatValue(j.Rotation); err != nil {
		return out, fmt.Errorf("%w: joint %q: rotation: %v", ErrStageFile, j.Name, err)
	}
	if out.Orientation, err = quatValue(j.Orientation); err != nil {
		return out, fmt.Errorf("%w: joint %q: orientation: %v", ErrStageFile, j.Name, err)
	}

	for _, k := range j.Keys {
		key := JointKey{Frame: k.Frame}
		if key.Translation, err = vec3Value(k.Translation); err != nil {
			return out, fmt.Errorf("%w: joint %q: key at frame %v: %v", ErrStageFile, j.Name, k.Frame, err)
		}
		if key.Rotation, err = quatValue(k.Rotation); err != nil {
			return out, fmt.Errorf("%w: joint %q: key at frame %v: %v", ErrStageFile, j.Name, k.Frame, err)
		}
		out.Keys = append(out.Keys, key)
	}

	return out, nil
}

func mapKindFromName(name string) (MapKind, bool) {
	switch name {
	case "diffuse":
		return MapDiffuse, true
	case "specular":
		return MapSpecular, true
	case "gloss":
		return MapGloss, true
	case "bump":
		return MapBump, true
	case "incandescence":
		return MapIncandescence, true
	}
	return 0, false
}

func vec3Slice(rows [][]float64) ([]math.Vec3, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]math.Vec3, len(rows))
	for i, row := range rows {
		v, err := vec3Value(row)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %v", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func vec3Value(row []float64) (math.Vec3, error) {
	if row == nil {
		return math.Vec3{}, nil
	}
	if len(row) != 3 {
		return math.Vec3{}, fmt.Errorf("want 3 components, got %d", len(row))
	}
	return math.Vec3{X: row[0], Y: row[1], Z: row[2]}, nil
}

// quatValue reads an x,y,z,w quadruple; nil means identity.
func quatValue(row []float64) (math.Quat, error) {
	if row == nil {
		return math.QuatIdentity(), nil
	}
	if len(row) != 4 {
		return math.Quat{}, fmt.Errorf("want 4 components, got %d", len(row))
	}
	return math.Quat{X: row[0], Y: row[1], Z: row[2], W: row[3]}, nil
}

func colorValue(row []float64, fallback Color) (Color, error) {
	if row == nil {
		return fallback, nil
	}
	if len(row) != 3 {
		return Color{}, fmt.Errorf("want 3 components, got %d", len(row))
	}
	return Color{R: row[0], G: row[1], B: row[2]}, nil
}
