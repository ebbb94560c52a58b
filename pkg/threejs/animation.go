package threejs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/Faultbox/threexport/pkg/scene"
)

// ErrUnknownFrameRate reports a frame-rate name no resolution rule matches.
var ErrUnknownFrameRate = errors.New("unknown frame rate")

// skeletalClipName labels the single clip this format carries.
const skeletalClipName = "skeletalAction.001"

// namedRates maps the host's symbolic frame-rate names to frames per second.
var namedRates = map[string]float64{
	"game":  15,
	"film":  24,
	"pal":   25,
	"ntsc":  30,
	"show":  48,
	"palf":  50,
	"ntscf": 60,
}

// FramesPerSecond resolves a symbolic frame-rate name to its numeric rate.
// Names outside the fixed table fall back to the first run of digits in the
// name, so "120fps" resolves to 120.
func FramesPerSecond(name string) (float64, error) {
	if fps, ok := namedRates[name]; ok {
		return fps, nil
	}
	digits := firstDigitRun(name)
	if digits == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFrameRate, name)
	}
	fps, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFrameRate, name)
	}
	return float64(fps), nil
}

// RateName returns the symbolic name of a numeric rate, "<n>fps" when no
// named rate matches. It is the inverse of FramesPerSecond.
func RateName(fps float64) string {
	for name, value := range namedRates {
		if value == fps {
			return name
		}
	}
	return fmt.Sprintf("%gfps", fps)
}

func firstDigitRun(s string) string {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			return s[start:i]
		}
	}
	if start != -1 {
		return s[start:]
	}
	return ""
}

// keyRecord is one sampled keyframe of a joint.
type keyRecord struct {
	Pos  []float64 `json:"pos"`
	Rot  []float64 `json:"rot"`
	Scl  []float64 `json:"scl"`
	Time float64   `json:"time"`
}

// hierarchyEntry is one joint's track in a skeletal clip.
type hierarchyEntry struct {
	Keys   []keyRecord `json:"keys"`
	Parent int         `json:"parent"`
}

// animationClip is one entry of the document's animations array.
type animationClip struct {
	FPS       float64          `json:"fps"`
	Hierarchy []hierarchyEntry `json:"hierarchy"`
	Length    float64          `json:"length"`
	Name      string           `json:"name"`
}

// morphTarget is one baked vertex snapshot.
type morphTarget struct {
	Name     string    `json:"name"`
	Vertices []float64 `json:"vertices"`
}

// exportKeyframeAnimations samples every joint at its authored key times and
// emits the single skeletal clip. Hierarchy entries carry the sequential
// parent indices this format's consumers expect, not the scene hierarchy.
func (st *exportState) exportKeyframeAnimations() error {
	pb := st.scn.Playback()
	first, last := pb.Range()
	fps, err := FramesPerSecond(pb.FrameRate())
	if err != nil {
		return err
	}

	hierarchy := []hierarchyEntry{}
	parent := -1
	for _, joint := range st.scn.Joints() {
		keys := st.jointKeys(joint, first, last, fps)
		st.log.Debug("joint keyframes",
			zap.String("joint", joint.Name()),
			zap.Int("count", len(keys)))
		hierarchy = append(hierarchy, hierarchyEntry{Keys: keys, Parent: parent})
		parent++
	}

	st.animations = append(st.animations, animationClip{
		Name:      skeletalClipName,
		Length:    (last - first) / fps,
		FPS:       1,
		Hierarchy: hierarchy,
	})
	return nil
}

// jointKeys samples one joint at its key times plus the playback bounds,
// deduplicated and ascending. Times are relative to the range start and
// scaled to seconds; rotation composes the joint rotation with its static
// orientation; scale is fixed at identity.
func (st *exportState) jointKeys(joint scene.Joint, first, last, fps float64) []keyRecord {
	pb := st.scn.Playback()

	frames := make([]float64, 0, len(joint.KeyTimes())+2)
	frames = append(frames, joint.KeyTimes()...)
	frames = append(frames, first, last)
	sort.Float64s(frames)

	keys := []keyRecord{}
	for i, frame := range frames {
		if i > 0 && frame == frames[i-1] {
			continue
		}
		pb.SetFrame(frame)
		keys = append(keys, keyRecord{
			Time: (frame - first) / fps,
			Pos:  roundVec3(joint.Translation()),
			Rot:  roundQuat(joint.Rotation().Mul(joint.Orientation())),
			Scl:  []float64{1, 1, 1},
		})
	}
	return keys
}

// exportMorphTargets snapshots every vertex position across all meshes at
// each baked frame, in frame order.
func (st *exportState) exportMorphTargets() error {
	pb := st.scn.Playback()
	for _, frame := range bakeFrames(st.opts.StartFrame, st.opts.EndFrame, st.opts.StepFrame) {
		st.log.Debug("baking frame", zap.Int("frame", frame))
		pb.SetFrame(float64(frame))

		verts := []float64{}
		for _, mesh := range st.scn.Meshes() {
			for _, p := range mesh.Points() {
				verts = append(verts, roundVec3(p)...)
			}
		}
		st.morphs = append(st.morphs, morphTarget{
			Name:     fmt.Sprintf("frame_%d", frame),
			Vertices: verts,
		})
	}
	return nil
}

// bakeFrames enumerates start up to end exclusive by step. A negative step
// counts down.
func bakeFrames(start, end, step int) []int {
	frames := []int{}
	switch {
	case step > 0:
		for f := start; f < end; f += step {
			frames = append(frames, f)
		}
	case step < 0:
		for f := start; f > end; f += step {
			frames = append(frames, f)
		}
	}
	return frames
}
