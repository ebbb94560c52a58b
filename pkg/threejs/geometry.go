package threejs

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/threexport/pkg/math"
	"github.com/Faultbox/threexport/pkg/scene"
)

// ErrMissingAttribute reports a face lacking the per-corner indices an
// enabled component requires.
var ErrMissingAttribute = errors.New("missing face attribute")

// exportMeshes walks every mesh in scene order, appending its data to the
// global arrays. Vertex, UV and normal index offsets advance per mesh so the
// faces of later meshes keep referencing the global arrays.
func (st *exportState) exportMeshes() error {
	for _, mesh := range st.scn.Meshes() {
		st.log.Info("exporting mesh", zap.String("mesh", mesh.Name()))
		if err := st.exportMesh(mesh); err != nil {
			return err
		}
	}
	return nil
}

func (st *exportState) exportMesh(mesh scene.Mesh) error {
	points := mesh.Points()
	u, v := mesh.UVs()

	if st.opts.Vertices {
		st.exportVertices(points)
	}
	if st.opts.Faces {
		if err := st.exportFaces(mesh); err != nil {
			return err
		}
	}
	if st.opts.Normals {
		st.exportNormals(mesh)
	}
	if st.opts.UVs {
		st.exportUVs(u, v)
	}
	if st.opts.Bones {
		if err := st.exportSkins(mesh, len(points)); err != nil {
			return err
		}
	}

	st.vertexOffset += len(points)
	st.uvOffset += len(u)
	st.normalOffset += len(mesh.Normals())
	return nil
}

func (st *exportState) exportVertices(points []math.Vec3) {
	for _, p := range points {
		st.vertices = append(st.vertices, roundVec3(p)...)
	}
}

// exportFaces emits one bitmask-tagged index group per face: the mask, the
// offset vertex indices, the material index when the face resolved to one,
// then offset UV and normal indices when those components are enabled.
func (st *exportState) exportFaces(mesh scene.Mesh) error {
	for i, face := range mesh.Faces() {
		matIndex, err := st.materialIndex(face, mesh)
		if err != nil {
			return err
		}
		hasMaterial := matIndex != -1
		hasUV := st.opts.UVs && len(face.UVs) > 0

		mask, err := st.bits.Encode(len(face.Vertices), hasMaterial, hasUV, st.opts.Normals)
		if err != nil {
			return fmt.Errorf("mesh %q face %d: %w", mesh.Name(), i, err)
		}
		if hasUV && len(face.UVs) != len(face.Vertices) {
			return fmt.Errorf("%w: mesh %q face %d has %d uv indices for %d vertices",
				ErrMissingAttribute, mesh.Name(), i, len(face.UVs), len(face.Vertices))
		}
		if st.opts.Normals && len(face.Normals) != len(face.Vertices) {
			return fmt.Errorf("%w: mesh %q face %d has %d normal indices for %d vertices",
				ErrMissingAttribute, mesh.Name(), i, len(face.Normals), len(face.Vertices))
		}

		st.faces = append(st.faces, mask)
		for _, vert := range face.Vertices {
			st.faces = append(st.faces, vert+st.vertexOffset)
		}
		if st.opts.Materials && hasMaterial {
			st.faces = append(st.faces, matIndex)
		}
		if hasUV {
			for _, uv := range face.UVs {
				st.faces = append(st.faces, uv+st.uvOffset)
			}
		}
		if st.opts.Normals {
			for _, n := range face.Normals {
				st.faces = append(st.faces, n+st.normalOffset)
			}
		}
	}
	return nil
}

// materialIndex resolves the material a face is bound to, preferring the
// per-face binding over the mesh-level one. Missing names resolve to -1
// unless strict mode is on.
func (st *exportState) materialIndex(face scene.Face, mesh scene.Mesh) (int, error) {
	if !st.opts.Materials {
		return -1, nil
	}
	name := face.Material
	if name == "" {
		name = mesh.Material()
	}
	if name == "" {
		return -1, nil
	}
	if idx, ok := st.matIndex[name]; ok {
		return idx, nil
	}
	if st.opts.Strict {
		return -1, fmt.Errorf("%w: material %q on mesh %q", ErrUnresolvedName, name, mesh.Name())
	}
	return -1, nil
}

func (st *exportState) exportNormals(mesh scene.Mesh) {
	for _, n := range mesh.Normals() {
		st.normals = append(st.normals, roundVec3(n)...)
	}
	for _, b := range mesh.Binormals() {
		st.binormals = append(st.binormals, roundVec3(b)...)
	}
	for _, t := range mesh.Tangents() {
		st.tangents = append(st.tangents, roundVec3(t)...)
	}
}

func (st *exportState) exportUVs(u, v []float64) {
	for i := range u {
		st.uvs = append(st.uvs, Round(u[i], Precision), Round(v[i], Precision))
	}
}
