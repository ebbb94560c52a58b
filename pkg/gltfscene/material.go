package gltfscene

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/threexport/pkg/scene"
)

// phongCosPowerScale spreads the PBR roughness range over the cosine powers
// legacy viewers expect.
const phongCosPowerScale = 128

// materials maps the document's PBR materials onto the legacy shading
// models. Fully rough surfaces become Lambert; everything else becomes Phong
// with the remaining roughness folded into the cosine power.
func (b *build) materials() {
	for i, mat := range b.doc.Materials {
		name := mat.Name
		if name == "" {
			name = fmt.Sprintf("material_%d", i)
		}
		b.materialName[i] = name

		sm := scene.StageMaterial{
			Name:         name,
			Model:        scene.ShadingLambert,
			Color:        scene.Color{R: 1, G: 1, B: 1},
			DiffuseCoeff: 1,
			Transparency: 1,
			Maps:         map[scene.MapKind]scene.TextureMap{},
		}

		alpha := 1.0
		roughness := 1.0
		if pbr := mat.PBRMetallicRoughness; pbr != nil {
			if pbr.BaseColorFactor != nil {
				f := *pbr.BaseColorFactor
				sm.Color = scene.Color{R: float64(f[0]), G: float64(f[1]), B: float64(f[2])}
				alpha = float64(f[3])
			}
			if pbr.RoughnessFactor != nil {
				roughness = float64(*pbr.RoughnessFactor)
			}
			if pbr.BaseColorTexture != nil {
				b.addMap(&sm, scene.MapDiffuse, pbr.BaseColorTexture.Index)
			}
			if pbr.MetallicRoughnessTexture != nil {
				b.addMap(&sm, scene.MapGloss, pbr.MetallicRoughnessTexture.Index)
			}
		}
		sm.Ambient = sm.Color

		if roughness < 1 {
			sm.Model = scene.ShadingPhong
			sm.Specular = &scene.Specular{
				Color:    scene.Color{R: 1, G: 1, B: 1},
				CosPower: (1 - roughness) * phongCosPowerScale,
			}
		}
		// Alpha only participates in blended materials; opaque and masked
		// ones export as solid.
		if mat.AlphaMode == gltf.AlphaBlend {
			sm.Transparency = alpha
		}

		if mat.NormalTexture != nil && mat.NormalTexture.Index != nil {
			b.addMap(&sm, scene.MapBump, *mat.NormalTexture.Index)
		}
		if mat.EmissiveTexture != nil {
			b.addMap(&sm, scene.MapIncandescence, mat.EmissiveTexture.Index)
		}
		if mat.EmissiveFactor != [3]float32{} {
			sm.Incandescence = &scene.Color{
				R: float64(mat.EmissiveFactor[0]),
				G: float64(mat.EmissiveFactor[1]),
				B: float64(mat.EmissiveFactor[2]),
			}
		}

		b.stage.AddMaterial(sm)
	}
}

// addMap binds a texture channel when the texture resolves to an external
// image file.
func (b *build) addMap(sm *scene.StageMaterial, kind scene.MapKind, texture uint32) {
	file := b.textureFile(texture)
	if file == "" {
		return
	}
	sm.Maps[kind] = scene.TextureMap{
		File:      file,
		ColorGain: scene.Color{R: 1, G: 1, B: 1},
	}
}

// textureFile resolves a texture index to an image path on disk. Embedded
// and data-URI images have no file to point at and resolve to "".
func (b *build) textureFile(texture uint32) string {
	if int(texture) >= len(b.doc.Textures) {
		return ""
	}
	tex := b.doc.Textures[texture]
	if tex.Source == nil || int(*tex.Source) >= len(b.doc.Images) {
		return ""
	}
	img := b.doc.Images[*tex.Source]
	if img.URI == "" || strings.HasPrefix(img.URI, "data:") {
		b.log.Debug("skipping embedded image", zap.String("image", img.Name))
		return ""
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(img.URI))
}
