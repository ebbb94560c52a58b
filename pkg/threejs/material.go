package threejs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Faultbox/threexport/pkg/scene"
)

// exportMaterials emits one record per scene material and fills the
// name→index table faces resolve through.
func (st *exportState) exportMaterials() error {
	for _, mat := range st.scn.Materials() {
		record, err := st.exportMaterial(mat)
		if err != nil {
			return err
		}
		st.matIndex[mat.Name()] = len(st.materials)
		st.materials = append(st.materials, record)
	}
	return nil
}

func (st *exportState) exportMaterial(mat scene.Material) (map[string]any, error) {
	color := mat.Color()
	coeff := mat.DiffuseCoeff()
	ambient := mat.Ambient()
	transparency := mat.Transparency()

	record := map[string]any{
		"DbgName":      mat.Name(),
		"blending":     "NormalBlending",
		"colorDiffuse": []float64{color.R * coeff, color.G * coeff, color.B * coeff},
		"colorAmbient": []float64{ambient.R, ambient.G, ambient.B},
		"depthTest":    true,
		"depthWrite":   true,
		"shading":      mat.ShadingModel(),
		"transparency": transparency,
		"transparent":  transparency != 1.0,
		"vertexColors": false,
	}
	if spec := mat.Specular(); spec != nil {
		record["colorSpecular"] = []float64{spec.Color.R, spec.Color.G, spec.Color.B}
		record["specularCoef"] = spec.CosPower
	}

	if st.opts.SpecularMaps {
		if err := st.exportMap(record, mat, scene.MapSpecular); err != nil {
			return nil, err
		}
	}
	if st.opts.GlossMaps {
		if err := st.exportMap(record, mat, scene.MapGloss); err != nil {
			return nil, err
		}
	}
	if st.opts.BumpMaps {
		if err := st.exportMap(record, mat, scene.MapBump); err != nil {
			return nil, err
		}
	}
	if st.opts.DiffuseMaps {
		if err := st.exportMap(record, mat, scene.MapDiffuse); err != nil {
			return nil, err
		}
	}
	if st.opts.IncandescenceMasks {
		if inc := mat.Incandescence(); inc != nil {
			record["colorIncandescence"] = []float64{inc.R, inc.G, inc.B}
		}
		if err := st.exportMap(record, mat, scene.MapIncandescence); err != nil {
			return nil, err
		}
	}

	return record, nil
}

// exportMap records one texture channel: the file's base name plus fixed
// gain, repeat, wrap and anisotropy fields. Bump maps publish under the
// Normal key with a unit normal factor; diffuse and specular maps override
// the matching color with the file node's default color when it has one.
// The Anistropy key spelling is what existing consumers parse.
func (st *exportState) exportMap(record map[string]any, mat scene.Material, kind scene.MapKind) error {
	tm := mat.Map(kind)
	if tm == nil {
		return nil
	}

	keyName := kind.String()
	switch kind {
	case scene.MapBump:
		keyName = "Normal"
		record["mapNormalFactor"] = 1
	case scene.MapDiffuse:
		if tm.DefaultColor != nil {
			record["colorDiffuse"] = []float64{tm.DefaultColor.R, tm.DefaultColor.G, tm.DefaultColor.B}
		}
	case scene.MapSpecular:
		if tm.DefaultColor != nil {
			record["colorSpecular"] = []float64{tm.DefaultColor.R, tm.DefaultColor.G, tm.DefaultColor.B}
		}
	}

	name := filepath.Base(tm.File)
	if st.opts.CopyTextures && st.textureDir != "" {
		if err := copyFile(tm.File, filepath.Join(st.textureDir, name)); err != nil {
			return fmt.Errorf("copying %s texture of material %q: %w", keyName, mat.Name(), err)
		}
	}

	record["map"+keyName] = name
	record["map"+keyName+"ColorGain"] = []float64{tm.ColorGain.R, tm.ColorGain.G, tm.ColorGain.B}
	record["map"+keyName+"Repeat"] = []int{1, 1}
	record["map"+keyName+"Wrap"] = []string{"repeat", "repeat"}
	record["map"+keyName+"Anistropy"] = 4
	return nil
}

// copyFile copies src to dst, creating or truncating dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
