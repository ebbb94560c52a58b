package threejs

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/threexport/pkg/scene"
)

// ErrSkinCapacity reports a vertex carrying more live influences than the
// configured per-vertex width.
var ErrSkinCapacity = errors.New("skin capacity exceeded")

// boneRecord is one entry of the document's bones array.
type boneRecord struct {
	Name   string    `json:"name"`
	Parent int       `json:"parent"`
	Pos    []float64 `json:"pos"`
	RotQ   []float64 `json:"rotq"`
}

// exportBones flattens the joint hierarchy into the bones array in scene
// traversal order. Parent linkage resolves through a name table built once;
// an unknown parent resolves to -1 unless strict mode is on. The caller has
// already rested the rig in its bind pose.
func (st *exportState) exportBones() error {
	joints := st.scn.Joints()
	for i, j := range joints {
		st.jointIndex[j.Name()] = i
	}

	for _, j := range joints {
		parentIndex := -1
		if parent := j.Parent(); parent != "" {
			idx, ok := st.jointIndex[parent]
			if !ok {
				if st.opts.Strict {
					return fmt.Errorf("%w: parent %q of joint %q", ErrUnresolvedName, parent, j.Name())
				}
				idx = -1
			}
			parentIndex = idx
		}

		st.bones = append(st.bones, boneRecord{
			Name:   j.Name(),
			Parent: parentIndex,
			Pos:    roundVec3(j.Translation()),
			RotQ:   roundQuat(j.Rotation().Mul(j.Orientation())),
		})
	}
	return nil
}

// exportSkins emits exactly InfluencesPerVertex (index, weight) pairs per
// vertex: the live influences first, zero pairs after. Unskinned meshes pad
// every vertex with zero pairs so the skin arrays stay aligned with the
// global vertex order.
func (st *exportState) exportSkins(mesh scene.Mesh, vertexCount int) error {
	capacity := st.opts.InfluencesPerVertex

	skin := mesh.Skin()
	if skin == nil {
		for i := 0; i < vertexCount*capacity; i++ {
			st.skinIndices = append(st.skinIndices, 0)
			st.skinWeights = append(st.skinWeights, 0)
		}
		return nil
	}

	st.log.Debug("mesh has a skin",
		zap.String("mesh", mesh.Name()),
		zap.Int("influences", len(skin.Influences)))

	jointFor := make([]int, len(skin.Influences))
	for i, name := range skin.Influences {
		idx, ok := st.jointIndex[name]
		if !ok {
			if st.opts.Strict {
				return fmt.Errorf("%w: influence %q on mesh %q", ErrUnresolvedName, name, mesh.Name())
			}
			idx = -1
		}
		jointFor[i] = idx
	}

	for _, weights := range skin.Weights {
		live := 0
		for i, weight := range weights {
			if weight > 0 {
				st.skinWeights = append(st.skinWeights, Round(weight, Precision))
				st.skinIndices = append(st.skinIndices, jointFor[i])
				live++
			}
		}
		if live > capacity {
			return fmt.Errorf("%w: more than %d influences on a vertex in %q", ErrSkinCapacity, capacity, mesh.Name())
		}
		for i := live; i < capacity; i++ {
			st.skinWeights = append(st.skinWeights, 0)
			st.skinIndices = append(st.skinIndices, 0)
		}
	}
	return nil
}
