package threejs

import (
	"bytes"
	"encoding/json"
	"errors"
	gomath "math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Faultbox/threexport/pkg/math"
	"github.com/Faultbox/threexport/pkg/scene"
)

func TestExport_MetadataOnly(t *testing.T) {
	data, err := (&Writer{}).Export(buildTestStage(), Options{})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	if len(doc) != 1 {
		t.Errorf("expected metadata to be the only section, got keys %v", docKeys(doc))
	}
	meta, ok := doc["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("expected metadata object, got %T", doc["metadata"])
	}
	if meta["formatVersion"] != 3.1 {
		t.Errorf("expected format version 3.1, got %v", meta["formatVersion"])
	}
	if meta["generatedBy"] != "threexport" {
		t.Errorf("expected generatedBy threexport, got %v", meta["generatedBy"])
	}
}

func TestExport_Geometry(t *testing.T) {
	opts := Options{Vertices: true, Faces: true, Normals: true, UVs: true, Materials: true}
	data, err := (&Writer{}).Export(buildTestStage(), opts)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	wantVertices := []float64{
		0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0,
		2, 0, 0, 3, 0, 0, 2.5, 1, 0,
	}
	if got := floatValues(doc["vertices"]); !reflect.DeepEqual(got, wantVertices) {
		t.Errorf("vertices: expected %v, got %v", wantVertices, got)
	}

	// The quad of the first mesh resolves its mesh-level material; the
	// triangle of the second carries a face-level one. Indices of the
	// second mesh shift by the first mesh's counts.
	wantFaces := []float64{
		43, 0, 1, 2, 3, 0, 0, 1, 2, 3, 0, 0, 0, 0,
		42, 4, 5, 6, 1, 4, 5, 6, 1, 1, 1,
	}
	if got := floatValues(doc["faces"]); !reflect.DeepEqual(got, wantFaces) {
		t.Errorf("faces: expected %v, got %v", wantFaces, got)
	}

	wantUVs := []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0, 1, 0, 0.5, 1}
	if got := floatValues(doc["uvs"]); !reflect.DeepEqual(got, wantUVs) {
		t.Errorf("uvs: expected %v, got %v", wantUVs, got)
	}

	wantNormals := []float64{0, 0, 1, 0, 0, 1}
	if got := floatValues(doc["normals"]); !reflect.DeepEqual(got, wantNormals) {
		t.Errorf("normals: expected %v, got %v", wantNormals, got)
	}
	wantTangents := []float64{1, 0, 0, 1, 0, 0}
	if got := floatValues(doc["tangents"]); !reflect.DeepEqual(got, wantTangents) {
		t.Errorf("tangents: expected %v, got %v", wantTangents, got)
	}
	wantBinormals := []float64{0, 1, 0, 0, 1, 0}
	if got := floatValues(doc["binormals"]); !reflect.DeepEqual(got, wantBinormals) {
		t.Errorf("binormals: expected %v, got %v", wantBinormals, got)
	}
}

func TestExport_VertexRounding(t *testing.T) {
	st := scene.NewStage(0, 1, "film")
	st.AddMesh(scene.StageMesh{
		Name:     "dot",
		Vertices: []math.Vec3{{X: 0.123456789, Y: -0.987654321, Z: 1.0 / 3.0}},
	})

	data, err := (&Writer{}).Export(st, Options{Vertices: true})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	want := []float64{0.12345679, -0.98765432, 0.33333333}
	if got := floatValues(doc["vertices"]); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExport_FaceWithoutUVs(t *testing.T) {
	st := scene.NewStage(0, 1, "film")
	st.AddMesh(scene.StageMesh{
		Name:     "plain",
		Vertices: []math.Vec3{{}, {X: 1}, {Y: 1}},
		Faces:    []scene.Face{{Vertices: []int{0, 1, 2}}},
	})

	data, err := (&Writer{}).Export(st, Options{Faces: true, UVs: true})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	want := []float64{0, 0, 1, 2}
	if got := floatValues(doc["faces"]); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExport_UnresolvedMaterial(t *testing.T) {
	st := scene.NewStage(0, 1, "film")
	st.AddMesh(scene.StageMesh{
		Name:     "orphan",
		Material: "missing",
		Vertices: []math.Vec3{{}, {X: 1}, {Y: 1}},
		Faces:    []scene.Face{{Vertices: []int{0, 1, 2}}},
	})
	st.AddMesh(scene.StageMesh{
		Name:     "unbound",
		Vertices: []math.Vec3{{}, {X: 1}, {Y: 1}},
		Faces:    []scene.Face{{Vertices: []int{0, 1, 2}}},
	})

	data, err := (&Writer{}).Export(st, Options{Faces: true, Materials: true})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	// Neither face resolved a material, so neither carries the material
	// bit or a material index.
	want := []float64{0, 0, 1, 2, 0, 3, 4, 5}
	if got := floatValues(doc["faces"]); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExport_UnresolvedMaterialStrict(t *testing.T) {
	st := scene.NewStage(0, 1, "film")
	st.AddMesh(scene.StageMesh{
		Name:     "orphan",
		Material: "missing",
		Vertices: []math.Vec3{{}, {X: 1}, {Y: 1}},
		Faces:    []scene.Face{{Vertices: []int{0, 1, 2}}},
	})

	_, err := (&Writer{}).Export(st, Options{Faces: true, Materials: true, Strict: true})
	if !errors.Is(err, ErrUnresolvedName) {
		t.Errorf("expected ErrUnresolvedName, got %v", err)
	}
}

func TestExport_UnsupportedFace(t *testing.T) {
	st := scene.NewStage(0, 1, "film")
	st.AddMesh(scene.StageMesh{
		Name:     "poly",
		Vertices: []math.Vec3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}, {Y: 2}},
		Faces:    []scene.Face{{Vertices: []int{0, 1, 2, 3, 4}}},
	})

	_, err := (&Writer{}).Export(st, Options{Faces: true})
	if !errors.Is(err, ErrUnsupportedGeometry) {
		t.Errorf("expected ErrUnsupportedGeometry, got %v", err)
	}
}

func TestExport_FaceMissingNormals(t *testing.T) {
	st := scene.NewStage(0, 1, "film")
	st.AddMesh(scene.StageMesh{
		Name:     "flat",
		Vertices: []math.Vec3{{}, {X: 1}, {Y: 1}},
		Faces:    []scene.Face{{Vertices: []int{0, 1, 2}}},
		Normals:  []math.Vec3{{Z: 1}},
	})

	_, err := (&Writer{}).Export(st, Options{Faces: true, Normals: true})
	if !errors.Is(err, ErrMissingAttribute) {
		t.Errorf("expected ErrMissingAttribute, got %v", err)
	}
}

func TestExport_Materials(t *testing.T) {
	data, err := (&Writer{}).Export(buildTestStage(), Options{Materials: true})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	mats, ok := doc["materials"].([]any)
	if !ok || len(mats) != 2 {
		t.Fatalf("expected 2 materials, got %v", doc["materials"])
	}

	body, ok := mats[0].(map[string]any)
	if !ok {
		t.Fatalf("expected material object, got %T", mats[0])
	}
	if body["DbgName"] != "body" {
		t.Errorf("expected DbgName body, got %v", body["DbgName"])
	}
	if body["shading"] != "Phong" {
		t.Errorf("expected Phong shading, got %v", body["shading"])
	}
	if body["blending"] != "NormalBlending" {
		t.Errorf("expected NormalBlending, got %v", body["blending"])
	}
	wantDiffuse := []float64{1 * 0.8, 0.5 * 0.8, 0.25 * 0.8}
	if got := floatValues(body["colorDiffuse"]); !reflect.DeepEqual(got, wantDiffuse) {
		t.Errorf("colorDiffuse: expected %v, got %v", wantDiffuse, got)
	}
	if got := floatValues(body["colorAmbient"]); !reflect.DeepEqual(got, []float64{0.1, 0.1, 0.1}) {
		t.Errorf("colorAmbient: expected ambient color, got %v", got)
	}
	if got := floatValues(body["colorSpecular"]); !reflect.DeepEqual(got, []float64{1, 1, 1}) {
		t.Errorf("colorSpecular: expected white, got %v", got)
	}
	if body["specularCoef"] != float64(20) {
		t.Errorf("expected specularCoef 20, got %v", body["specularCoef"])
	}
	if body["transparent"] != false {
		t.Errorf("expected opaque material, got transparent %v", body["transparent"])
	}
	if body["depthTest"] != true || body["depthWrite"] != true || body["vertexColors"] != false {
		t.Error("expected fixed depth and vertex color fields")
	}

	cloth, ok := mats[1].(map[string]any)
	if !ok {
		t.Fatalf("expected material object, got %T", mats[1])
	}
	if cloth["DbgName"] != "cloth" {
		t.Errorf("expected DbgName cloth, got %v", cloth["DbgName"])
	}
	if cloth["shading"] != "Lambert" {
		t.Errorf("expected Lambert shading, got %v", cloth["shading"])
	}
	if cloth["transparent"] != true || cloth["transparency"] != 0.5 {
		t.Errorf("expected transparency 0.5, got %v transparent %v", cloth["transparency"], cloth["transparent"])
	}
	if _, found := cloth["colorSpecular"]; found {
		t.Error("expected no specular fields on a Lambert material")
	}
}

func TestExport_TextureMaps(t *testing.T) {
	srcDir := t.TempDir()
	texture := filepath.Join(srcDir, "skin.png")
	if err := os.WriteFile(texture, []byte("png"), 0o644); err != nil {
		t.Fatalf("failed to write texture: %v", err)
	}

	st := scene.NewStage(0, 1, "film")
	st.AddMaterial(scene.StageMaterial{
		Name:         "painted",
		Model:        scene.ShadingLambert,
		Color:        scene.Color{R: 1, G: 1, B: 1},
		DiffuseCoeff: 1,
		Transparency: 1,
		Maps: map[scene.MapKind]scene.TextureMap{
			scene.MapDiffuse: {
				File:         texture,
				ColorGain:    scene.Color{R: 1, G: 0.5, B: 1},
				DefaultColor: &scene.Color{R: 0.25, G: 0.5, B: 0.75},
			},
			scene.MapBump: {File: texture, ColorGain: scene.Color{R: 1, G: 1, B: 1}},
		},
	})

	outDir := t.TempDir()
	w := &Writer{TextureDir: outDir}
	opts := Options{Materials: true, DiffuseMaps: true, BumpMaps: true, CopyTextures: true}
	data, err := w.Export(st, opts)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	mats := doc["materials"].([]any)
	painted := mats[0].(map[string]any)

	if painted["mapDiffuse"] != "skin.png" {
		t.Errorf("expected mapDiffuse skin.png, got %v", painted["mapDiffuse"])
	}
	if got := floatValues(painted["mapDiffuseColorGain"]); !reflect.DeepEqual(got, []float64{1, 0.5, 1}) {
		t.Errorf("mapDiffuseColorGain: got %v", got)
	}
	if got := floatValues(painted["mapDiffuseRepeat"]); !reflect.DeepEqual(got, []float64{1, 1}) {
		t.Errorf("mapDiffuseRepeat: got %v", got)
	}
	wrap, ok := painted["mapDiffuseWrap"].([]any)
	if !ok || len(wrap) != 2 || wrap[0] != "repeat" || wrap[1] != "repeat" {
		t.Errorf("mapDiffuseWrap: got %v", painted["mapDiffuseWrap"])
	}
	if painted["mapDiffuseAnistropy"] != float64(4) {
		t.Errorf("mapDiffuseAnistropy: got %v", painted["mapDiffuseAnistropy"])
	}

	// The file node's default color replaces the diffuse color.
	if got := floatValues(painted["colorDiffuse"]); !reflect.DeepEqual(got, []float64{0.25, 0.5, 0.75}) {
		t.Errorf("colorDiffuse: got %v", got)
	}

	// Bump maps publish under the Normal key.
	if painted["mapNormal"] != "skin.png" {
		t.Errorf("expected mapNormal skin.png, got %v", painted["mapNormal"])
	}
	if painted["mapNormalFactor"] != float64(1) {
		t.Errorf("expected mapNormalFactor 1, got %v", painted["mapNormalFactor"])
	}
	if _, found := painted["mapSpecular"]; found {
		t.Error("expected no specular map")
	}

	copied, err := os.ReadFile(filepath.Join(outDir, "skin.png"))
	if err != nil {
		t.Fatalf("expected texture copied next to output: %v", err)
	}
	if string(copied) != "png" {
		t.Errorf("copied texture content mismatch: %q", copied)
	}
}

func TestExport_TextureCopySkippedWithoutDir(t *testing.T) {
	st := scene.NewStage(0, 1, "film")
	st.AddMaterial(scene.StageMaterial{
		Name:         "painted",
		Model:        scene.ShadingLambert,
		Color:        scene.Color{R: 1, G: 1, B: 1},
		DiffuseCoeff: 1,
		Transparency: 1,
		Maps: map[scene.MapKind]scene.TextureMap{
			scene.MapDiffuse: {
				File:      filepath.Join("missing", "skin.png"),
				ColorGain: scene.Color{R: 1, G: 1, B: 1},
			},
		},
	})

	// No TextureDir set: the source file is never touched, so a missing
	// file cannot fail the export, and the name is still recorded.
	opts := Options{Materials: true, DiffuseMaps: true, CopyTextures: true}
	data, err := (&Writer{}).Export(st, opts)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	mats := doc["materials"].([]any)
	painted := mats[0].(map[string]any)
	if painted["mapDiffuse"] != "skin.png" {
		t.Errorf("expected mapDiffuse skin.png, got %v", painted["mapDiffuse"])
	}
}

func TestExport_Bones(t *testing.T) {
	opts := Options{Bones: true, InfluencesPerVertex: 2}
	data, err := (&Writer{}).Export(buildTestStage(), opts)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	bones, ok := doc["bones"].([]any)
	if !ok || len(bones) != 2 {
		t.Fatalf("expected 2 bones, got %v", doc["bones"])
	}

	root := bones[0].(map[string]any)
	if root["name"] != "root" || root["parent"] != float64(-1) {
		t.Errorf("expected root bone with parent -1, got %v", root)
	}
	if got := floatValues(root["pos"]); !reflect.DeepEqual(got, []float64{0, 1, 0}) {
		t.Errorf("root pos: got %v", got)
	}
	if got := floatValues(root["rotq"]); !reflect.DeepEqual(got, []float64{0, 0, 0, 1}) {
		t.Errorf("root rotq: got %v", got)
	}

	// The limb's rest rotation is the identity composed with its orient
	// offset, so the offset comes through verbatim.
	limb := bones[1].(map[string]any)
	if limb["name"] != "limb" || limb["parent"] != float64(0) {
		t.Errorf("expected limb bone with parent 0, got %v", limb)
	}
	if got := floatValues(limb["pos"]); !reflect.DeepEqual(got, []float64{0, 0.5, 0}) {
		t.Errorf("limb pos: got %v", got)
	}
	orient := math.QuatFromAxisAngle(math.Vec3{Z: 1}, gomath.Pi/2)
	if got := floatValues(limb["rotq"]); !reflect.DeepEqual(got, roundQuat(orient)) {
		t.Errorf("limb rotq: expected %v, got %v", roundQuat(orient), got)
	}

	if doc["influencesPerVertex"] != float64(2) {
		t.Errorf("expected influencesPerVertex 2, got %v", doc["influencesPerVertex"])
	}

	// Four skinned vertices, then the unskinned mesh's three vertices
	// padded with zero pairs.
	wantIndices := []float64{0, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if got := floatValues(doc["skinIndices"]); !reflect.DeepEqual(got, wantIndices) {
		t.Errorf("skinIndices: expected %v, got %v", wantIndices, got)
	}
	wantWeights := []float64{1, 0, 0.5, 0.5, 1, 0, 1, 0, 0, 0, 0, 0, 0, 0}
	if got := floatValues(doc["skinWeights"]); !reflect.DeepEqual(got, wantWeights) {
		t.Errorf("skinWeights: expected %v, got %v", wantWeights, got)
	}
}

func TestExport_SkinCapacity(t *testing.T) {
	st := scene.NewStage(0, 1, "film")
	st.AddMesh(scene.StageMesh{
		Name:     "crowded",
		Vertices: []math.Vec3{{}},
		Skin: &scene.Skin{
			Influences: []string{"a", "b", "c"},
			Weights:    [][]float64{{0.3, 0.3, 0.4}},
		},
	})

	_, err := (&Writer{}).Export(st, Options{Bones: true, InfluencesPerVertex: 2})
	if !errors.Is(err, ErrSkinCapacity) {
		t.Errorf("expected ErrSkinCapacity, got %v", err)
	}
}

func TestExport_UnresolvedInfluenceStrict(t *testing.T) {
	st := scene.NewStage(0, 1, "film")
	st.AddMesh(scene.StageMesh{
		Name:     "loose",
		Vertices: []math.Vec3{{}},
		Skin: &scene.Skin{
			Influences: []string{"ghost"},
			Weights:    [][]float64{{1}},
		},
	})

	_, err := (&Writer{}).Export(st, Options{Bones: true, InfluencesPerVertex: 2, Strict: true})
	if !errors.Is(err, ErrUnresolvedName) {
		t.Errorf("expected ErrUnresolvedName, got %v", err)
	}
}

func TestExport_SkeletalAnimation(t *testing.T) {
	data, err := (&Writer{}).Export(buildTestStage(), Options{SkeletalAnim: true})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	anims, ok := doc["animations"].([]any)
	if !ok || len(anims) != 1 {
		t.Fatalf("expected 1 animation clip, got %v", doc["animations"])
	}
	clip := anims[0].(map[string]any)

	if clip["name"] != "skeletalAction.001" {
		t.Errorf("expected clip name skeletalAction.001, got %v", clip["name"])
	}
	if clip["fps"] != float64(1) {
		t.Errorf("expected fps 1, got %v", clip["fps"])
	}
	if clip["length"] != 10.0/30.0 {
		t.Errorf("expected length %v, got %v", 10.0/30.0, clip["length"])
	}

	hier, ok := clip["hierarchy"].([]any)
	if !ok || len(hier) != 2 {
		t.Fatalf("expected 2 hierarchy entries, got %v", clip["hierarchy"])
	}

	first := hier[0].(map[string]any)
	if first["parent"] != float64(-1) {
		t.Errorf("expected first entry parent -1, got %v", first["parent"])
	}
	keys := first["keys"].([]any)
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys on the root, got %d", len(keys))
	}

	k0 := keys[0].(map[string]any)
	if k0["time"] != float64(0) {
		t.Errorf("expected first key at time 0, got %v", k0["time"])
	}
	if got := floatValues(k0["pos"]); !reflect.DeepEqual(got, []float64{0, 1, 0}) {
		t.Errorf("first key pos: got %v", got)
	}
	if got := floatValues(k0["rot"]); !reflect.DeepEqual(got, []float64{0, 0, 0, 1}) {
		t.Errorf("first key rot: got %v", got)
	}
	if got := floatValues(k0["scl"]); !reflect.DeepEqual(got, []float64{1, 1, 1}) {
		t.Errorf("first key scl: got %v", got)
	}

	k1 := keys[1].(map[string]any)
	if k1["time"] != 10.0/30.0 {
		t.Errorf("expected last key at time %v, got %v", 10.0/30.0, k1["time"])
	}
	if got := floatValues(k1["pos"]); !reflect.DeepEqual(got, []float64{0, 2, 0}) {
		t.Errorf("last key pos: got %v", got)
	}

	// The limb has one authored key at frame 5; the playback bounds are
	// merged in, giving three keys.
	second := hier[1].(map[string]any)
	if second["parent"] != float64(0) {
		t.Errorf("expected second entry parent 0, got %v", second["parent"])
	}
	limbKeys := second["keys"].([]any)
	if len(limbKeys) != 3 {
		t.Fatalf("expected 3 keys on the limb, got %d", len(limbKeys))
	}
	wantTimes := []float64{0, 5.0 / 30.0, 10.0 / 30.0}
	orient := math.QuatFromAxisAngle(math.Vec3{Z: 1}, gomath.Pi/2)
	for i, raw := range limbKeys {
		key := raw.(map[string]any)
		if key["time"] != wantTimes[i] {
			t.Errorf("limb key %d: expected time %v, got %v", i, wantTimes[i], key["time"])
		}
		if got := floatValues(key["pos"]); !reflect.DeepEqual(got, []float64{0, 0.5, 0}) {
			t.Errorf("limb key %d pos: got %v", i, got)
		}
		if got := floatValues(key["rot"]); !reflect.DeepEqual(got, roundQuat(orient)) {
			t.Errorf("limb key %d rot: expected %v, got %v", i, roundQuat(orient), got)
		}
	}
}

func TestExport_UnknownFrameRateFails(t *testing.T) {
	st := scene.NewStage(0, 10, "sometime")
	_, err := (&Writer{}).Export(st, Options{SkeletalAnim: true})
	if !errors.Is(err, ErrUnknownFrameRate) {
		t.Errorf("expected ErrUnknownFrameRate, got %v", err)
	}
}

func TestExport_MorphTargets(t *testing.T) {
	opts := Options{BakeAnimations: true, StartFrame: 0, EndFrame: 10, StepFrame: 5}
	data, err := (&Writer{}).Export(buildTestStage(), opts)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	morphs, ok := doc["morphTargets"].([]any)
	if !ok || len(morphs) != 2 {
		t.Fatalf("expected 2 morph targets, got %v", doc["morphTargets"])
	}

	bind := []float64{
		0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0,
		2, 0, 0, 3, 0, 0, 2.5, 1, 0,
	}
	moved := []float64{
		0, 0, 1, 1, 0, 1, 1, 1, 1, 0, 1, 1,
		2, 0, 0, 3, 0, 0, 2.5, 1, 0,
	}

	m0 := morphs[0].(map[string]any)
	if m0["name"] != "frame_0" {
		t.Errorf("expected frame_0, got %v", m0["name"])
	}
	if got := floatValues(m0["vertices"]); !reflect.DeepEqual(got, bind) {
		t.Errorf("frame_0 vertices: expected %v, got %v", bind, got)
	}

	m1 := morphs[1].(map[string]any)
	if m1["name"] != "frame_5" {
		t.Errorf("expected frame_5, got %v", m1["name"])
	}
	if got := floatValues(m1["vertices"]); !reflect.DeepEqual(got, moved) {
		t.Errorf("frame_5 vertices: expected %v, got %v", moved, got)
	}
}

func TestExport_PrettyMatchesCompact(t *testing.T) {
	opts := Options{
		Vertices: true, Normals: true, UVs: true, Faces: true,
		Materials: true, DiffuseMaps: true, SpecularMaps: true,
		Bones: true, InfluencesPerVertex: 2, SkeletalAnim: true,
		BakeAnimations: true, StartFrame: 0, EndFrame: 10, StepFrame: 5,
	}

	compact, err := (&Writer{}).Export(buildTestStage(), opts)
	if err != nil {
		t.Fatalf("compact export failed: %v", err)
	}
	opts.PrettyOutput = true
	pretty, err := (&Writer{}).Export(buildTestStage(), opts)
	if err != nil {
		t.Fatalf("pretty export failed: %v", err)
	}

	if bytes.Equal(compact, pretty) {
		t.Fatal("expected pretty output to differ in formatting")
	}
	if !strings.Contains(string(pretty), "\n    ") {
		t.Error("expected four-space indentation in pretty output")
	}

	docCompact, err := decodeDocument(compact)
	if err != nil {
		t.Fatalf("failed to decode compact document: %v", err)
	}
	docPretty, err := decodeDocument(pretty)
	if err != nil {
		t.Fatalf("failed to decode pretty document: %v", err)
	}
	if !reflect.DeepEqual(docCompact, docPretty) {
		t.Error("expected identical documents in both formats")
	}
}

func TestExport_Deterministic(t *testing.T) {
	opts := Options{
		Vertices: true, Faces: true, Materials: true,
		Bones: true, InfluencesPerVertex: 2, SkeletalAnim: true,
	}
	w := &Writer{}
	st := buildTestStage()

	one, err := w.Export(st, opts)
	if err != nil {
		t.Fatalf("first export failed: %v", err)
	}
	two, err := w.Export(st, opts)
	if err != nil {
		t.Fatalf("second export failed: %v", err)
	}
	if !bytes.Equal(one, two) {
		t.Error("expected repeated exports of the same scene to match")
	}
}

func TestWriteFile(t *testing.T) {
	srcDir := t.TempDir()
	texture := filepath.Join(srcDir, "hull.png")
	if err := os.WriteFile(texture, []byte("png"), 0o644); err != nil {
		t.Fatalf("failed to write texture: %v", err)
	}

	st := buildTestStage()
	st.AddMaterial(scene.StageMaterial{
		Name:         "hull",
		Model:        scene.ShadingLambert,
		DiffuseCoeff: 1,
		Transparency: 1,
		Maps: map[scene.MapKind]scene.TextureMap{
			scene.MapDiffuse: {File: texture, ColorGain: scene.Color{R: 1, G: 1, B: 1}},
		},
	})

	outDir := t.TempDir()
	path := filepath.Join(outDir, "model.json")
	opts := Options{Vertices: true, Faces: true, Materials: true, DiffuseMaps: true, CopyTextures: true}
	if err := (&Writer{}).WriteFile(path, st, opts); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}
	if _, found := doc["metadata"]; !found {
		t.Error("expected metadata in written document")
	}

	// Textures land next to the document when no texture dir is set.
	if _, err := os.Stat(filepath.Join(outDir, "hull.png")); err != nil {
		t.Errorf("expected texture copied next to output: %v", err)
	}
}

// decodeDocument parses an exported document into a generic map.
func decodeDocument(data []byte) (map[string]any, error) {
	var doc map[string]any
	err := json.Unmarshal(data, &doc)
	return doc, err
}

// floatValues converts a decoded JSON array to a float slice, nil when the
// value is not an array of numbers.
func floatValues(v any) []float64 {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, len(arr))
	for i, e := range arr {
		f, ok := e.(float64)
		if !ok {
			return nil
		}
		out[i] = f
	}
	return out
}

// docKeys lists the section names of a decoded document.
func docKeys(doc map[string]any) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	return keys
}

// buildTestStage assembles a small rigged scene: a skinned quad with a
// vertex animation sample, an unskinned triangle, two materials and a
// two-joint chain with authored keyframes.
func buildTestStage() *scene.Stage {
	st := scene.NewStage(0, 10, "ntsc")

	st.AddMaterial(scene.StageMaterial{
		Name:         "body",
		Model:        scene.ShadingPhong,
		Color:        scene.Color{R: 1, G: 0.5, B: 0.25},
		DiffuseCoeff: 0.8,
		Ambient:      scene.Color{R: 0.1, G: 0.1, B: 0.1},
		Transparency: 1,
		Specular:     &scene.Specular{Color: scene.Color{R: 1, G: 1, B: 1}, CosPower: 20},
	})
	st.AddMaterial(scene.StageMaterial{
		Name:         "cloth",
		Model:        scene.ShadingLambert,
		Color:        scene.Color{R: 0.2, G: 0.4, B: 0.6},
		DiffuseCoeff: 1,
		Transparency: 0.5,
	})

	st.AddMesh(scene.StageMesh{
		Name:     "torso",
		Material: "body",
		Vertices: []math.Vec3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}},
		Faces: []scene.Face{{
			Vertices: []int{0, 1, 2, 3},
			UVs:      []int{0, 1, 2, 3},
			Normals:  []int{0, 0, 0, 0},
		}},
		Normals:   []math.Vec3{{Z: 1}},
		Tangents:  []math.Vec3{{X: 1}},
		Binormals: []math.Vec3{{Y: 1}},
		U:         []float64{0, 1, 1, 0},
		V:         []float64{0, 0, 1, 1},
		Skin: &scene.Skin{
			Influences: []string{"root", "limb"},
			Weights:    [][]float64{{1, 0}, {0.5, 0.5}, {0, 1}, {1, 0}},
		},
		Samples: []scene.VertexSample{{
			Frame:  5,
			Points: []math.Vec3{{Z: 1}, {X: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {Y: 1, Z: 1}},
		}},
	})
	st.AddMesh(scene.StageMesh{
		Name:     "fin",
		Vertices: []math.Vec3{{X: 2}, {X: 3}, {X: 2.5, Y: 1}},
		Faces: []scene.Face{{
			Vertices: []int{0, 1, 2},
			UVs:      []int{0, 1, 2},
			Normals:  []int{0, 0, 0},
			Material: "cloth",
		}},
		Normals:   []math.Vec3{{Z: 1}},
		Tangents:  []math.Vec3{{X: 1}},
		Binormals: []math.Vec3{{Y: 1}},
		U:         []float64{0, 1, 0.5},
		V:         []float64{0, 0, 1},
	})

	st.AddJoint(scene.StageJoint{
		Name:        "root",
		Translation: math.Vec3{Y: 1},
		Keys: []scene.JointKey{
			{Frame: 0, Translation: math.Vec3{Y: 1}},
			{Frame: 10, Translation: math.Vec3{Y: 2}},
		},
	})
	st.AddJoint(scene.StageJoint{
		Name:        "limb",
		Parent:      "root",
		Translation: math.Vec3{Y: 0.5},
		Orientation: math.QuatFromAxisAngle(math.Vec3{Z: 1}, gomath.Pi/2),
		Keys: []scene.JointKey{
			{Frame: 5, Translation: math.Vec3{Y: 0.5}},
		},
	})

	return st
}
