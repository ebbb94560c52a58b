// Package threejs exports scenes to the Three.js JSON model format:
// flattened geometry with bitmask-tagged faces, material records, a
// parent-indexed bone array, fixed-width skin bindings and baked or
// keyframed animation.
package threejs

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/threexport/pkg/scene"
)

// ErrUnresolvedName reports a failed material or joint name lookup in
// strict mode.
var ErrUnresolvedName = errors.New("unresolved name")

// FormatVersion is the model format revision this writer emits.
const FormatVersion = 3.1

// GeneratedBy identifies the exporter in document metadata.
const GeneratedBy = "threexport"

// Writer exports scenes to Three.js JSON documents. The zero value is ready
// to use; Logger and TextureDir are optional.
type Writer struct {
	// Logger receives progress events. nil disables logging.
	Logger *zap.Logger

	// TextureDir receives copies of referenced texture files when the
	// copyTextures option is set. WriteFile defaults it to the output
	// document's directory; Export and Write skip copying when it is
	// empty.
	TextureDir string
}

// Export runs one export and returns the serialized document.
func (w *Writer) Export(scn scene.Scene, opts Options) ([]byte, error) {
	return w.export(scn, opts, w.TextureDir)
}

// Write exports scn and writes the document to out.
func (w *Writer) Write(out io.Writer, scn scene.Scene, opts Options) error {
	data, err := w.export(scn, opts, w.TextureDir)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// WriteFile exports scn and writes the document to path in one piece; no
// partial document reaches disk on error. Texture copies, when requested,
// land next to the document.
func (w *Writer) WriteFile(path string, scn scene.Scene, opts Options) error {
	dir := w.TextureDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	data, err := w.export(scn, opts, dir)
	if err != nil {
		return err
	}
	w.logger().Info("writing file", zap.String("path", path))
	return os.WriteFile(path, data, 0o644)
}

func (w *Writer) logger() *zap.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return zap.NewNop()
}

func (w *Writer) export(scn scene.Scene, opts Options, textureDir string) ([]byte, error) {
	log := w.logger()
	st := &exportState{
		opts:        opts,
		scn:         scn,
		bits:        opts.Bits,
		log:         log,
		textureDir:  textureDir,
		vertices:    []float64{},
		faces:       []int{},
		normals:     []float64{},
		tangents:    []float64{},
		binormals:   []float64{},
		uvs:         []float64{},
		materials:   []map[string]any{},
		matIndex:    map[string]int{},
		bones:       []boneRecord{},
		jointIndex:  map[string]int{},
		skinIndices: []int{},
		skinWeights: []float64{},
		animations:  []animationClip{},
		morphs:      []morphTarget{},
	}
	if st.bits.isZero() {
		st.bits = DefaultBitLayout
	}

	if opts.Materials {
		log.Info("exporting materials")
		if err := st.exportMaterials(); err != nil {
			return nil, err
		}
	}
	if opts.Bones {
		log.Info("exporting bones")
		scn.Playback().GoToBindPose()
		if err := st.exportBones(); err != nil {
			return nil, err
		}
	}
	log.Info("exporting meshes")
	if err := st.exportMeshes(); err != nil {
		return nil, err
	}
	if opts.SkeletalAnim {
		log.Info("exporting keyframe animations")
		if err := st.exportKeyframeAnimations(); err != nil {
			return nil, err
		}
	}
	if opts.BakeAnimations {
		log.Info("baking morph targets")
		if err := st.exportMorphTargets(); err != nil {
			return nil, err
		}
	}

	return st.document()
}

// exportState accumulates the product of one export run. Every invocation
// of Export owns a fresh state; nothing carries over between runs.
type exportState struct {
	opts       Options
	scn        scene.Scene
	bits       BitLayout
	log        *zap.Logger
	textureDir string

	vertices  []float64
	faces     []int
	normals   []float64
	tangents  []float64
	binormals []float64
	uvs       []float64

	// Running element counts of the meshes already exported. Face indices
	// of later meshes shift by these so they reference the global arrays.
	vertexOffset int
	uvOffset     int
	normalOffset int

	materials []map[string]any
	matIndex  map[string]int

	bones       []boneRecord
	jointIndex  map[string]int
	skinIndices []int
	skinWeights []float64

	animations []animationClip
	morphs     []morphTarget
}

type docMetadata struct {
	FormatVersion float64 `json:"formatVersion"`
	GeneratedBy   string  `json:"generatedBy"`
}

// document assembles the output object and serializes it. Sections appear
// only when their option was requested; metadata is always present.
func (st *exportState) document() ([]byte, error) {
	doc := map[string]any{
		"metadata": docMetadata{FormatVersion: FormatVersion, GeneratedBy: GeneratedBy},
	}
	if st.opts.Vertices {
		doc["vertices"] = st.vertices
	}
	if st.opts.Faces {
		doc["faces"] = st.faces
	}
	if st.opts.Normals {
		doc["normals"] = st.normals
		doc["tangents"] = st.tangents
		doc["binormals"] = st.binormals
	}
	if st.opts.UVs {
		doc["uvs"] = st.uvs
	}
	if st.opts.Materials {
		doc["materials"] = st.materials
	}
	if st.opts.Bones {
		doc["bones"] = st.bones
		doc["influencesPerVertex"] = st.opts.InfluencesPerVertex
		doc["skinIndices"] = st.skinIndices
		doc["skinWeights"] = st.skinWeights
	}
	if st.opts.SkeletalAnim {
		doc["animations"] = st.animations
	}
	if st.opts.BakeAnimations {
		doc["morphTargets"] = st.morphs
	}

	if st.opts.PrettyOutput {
		return json.MarshalIndent(doc, "", "    ")
	}
	return json.Marshal(doc)
}
