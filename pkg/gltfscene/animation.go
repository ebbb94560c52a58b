package gltfscene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/threexport/pkg/math"
	"github.com/Faultbox/threexport/pkg/scene"
)

// ErrBadAnimation reports sampler data the converter cannot read.
var ErrBadAnimation = errors.New("unsupported animation data")

// nodeTrack holds one node's translation and rotation channels from the
// converted clip.
type nodeTrack struct {
	transTimes []float32
	transVals  [][3]float32
	rotTimes   []float32
	rotVals    [][4]float32
}

// collectTracks reads the first animation clip into per-node tracks and
// reports the clip length in seconds. Scale and morph weight channels have
// no slot in the exported rig and are dropped.
func (b *build) collectTracks() (map[uint32]*nodeTrack, float64, error) {
	tracks := map[uint32]*nodeTrack{}
	if len(b.doc.Animations) == 0 {
		return tracks, 0, nil
	}
	anim := b.doc.Animations[0]
	if len(b.doc.Animations) > 1 {
		b.log.Info("multiple animation clips, converting the first",
			zap.String("clip", anim.Name))
	}

	var last float64
	for _, ch := range anim.Channels {
		if ch.Sampler == nil || ch.Target.Node == nil {
			continue
		}
		if ch.Target.Path != gltf.TRSTranslation && ch.Target.Path != gltf.TRSRotation {
			continue
		}
		sampler := anim.Samplers[*ch.Sampler]
		if sampler.Interpolation == gltf.InterpolationCubicSpline {
			b.log.Warn("skipping cubic spline channel", zap.Uint32p("node", ch.Target.Node))
			continue
		}
		times, err := readTimeline(b.doc, sampler.Input)
		if err != nil {
			return nil, 0, err
		}
		if len(times) == 0 {
			continue
		}

		track := tracks[*ch.Target.Node]
		if track == nil {
			track = &nodeTrack{}
			tracks[*ch.Target.Node] = track
		}
		switch ch.Target.Path {
		case gltf.TRSTranslation:
			vals, err := readVec3s(b.doc, sampler.Output)
			if err != nil {
				return nil, 0, err
			}
			if len(vals) != len(times) {
				return nil, 0, fmt.Errorf("%w: %d translation keys for %d times",
					ErrBadAnimation, len(vals), len(times))
			}
			track.transTimes, track.transVals = times, vals
		case gltf.TRSRotation:
			vals, err := readVec4s(b.doc, sampler.Output)
			if err != nil {
				return nil, 0, err
			}
			if len(vals) != len(times) {
				return nil, 0, fmt.Errorf("%w: %d rotation keys for %d times",
					ErrBadAnimation, len(vals), len(times))
			}
			track.rotTimes, track.rotVals = times, vals
		}
		for _, t := range times {
			if float64(t) > last {
				last = float64(t)
			}
		}
	}
	return tracks, last, nil
}

// jointKeys resamples a node's channels at the union of their key times.
// Channels the clip never targets hold the node's rest value.
func jointKeys(track *nodeTrack, rate float64, restT math.Vec3, restR math.Quat) []scene.JointKey {
	if track == nil {
		return nil
	}
	times := append([]float32{}, track.transTimes...)
	times = append(times, track.rotTimes...)
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	keys := make([]scene.JointKey, 0, len(times))
	for i, t := range times {
		if i > 0 && t == times[i-1] {
			continue
		}
		keys = append(keys, scene.JointKey{
			Frame:       float64(t) * rate,
			Translation: sampleVec3(track.transTimes, track.transVals, t, restT),
			Rotation:    sampleQuat(track.rotTimes, track.rotVals, t, restR),
		})
	}
	return keys
}

// sampleVec3 evaluates a keyed channel at time t with linear interpolation.
// Times outside the keyed range clamp to the nearest key.
func sampleVec3(times []float32, vals [][3]float32, t float32, rest math.Vec3) math.Vec3 {
	if len(times) == 0 {
		return rest
	}
	prev, next := 0, 0
	for i := range times {
		if times[i] > t {
			next = i
			break
		}
		prev = i
		next = i
	}
	if prev == next {
		return vec3(vals[prev])
	}
	f := float64(t-times[prev]) / float64(times[next]-times[prev])
	return math.LerpVec3(vec3(vals[prev]), vec3(vals[next]), f)
}

// sampleQuat is sampleVec3 for rotation channels, with spherical
// interpolation between keys.
func sampleQuat(times []float32, vals [][4]float32, t float32, rest math.Quat) math.Quat {
	if len(times) == 0 {
		return rest
	}
	prev, next := 0, 0
	for i := range times {
		if times[i] > t {
			next = i
			break
		}
		prev = i
		next = i
	}
	if prev == next {
		return quat(vals[prev])
	}
	f := float64(t-times[prev]) / float64(times[next]-times[prev])
	return quat(vals[prev]).Slerp(quat(vals[next]), f)
}

func readTimeline(doc *gltf.Document, acc *uint32) ([]float32, error) {
	raw, err := readAccessor(doc, acc)
	if raw == nil || err != nil {
		return nil, err
	}
	times, ok := raw.([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: key times are %T", ErrBadAnimation, raw)
	}
	return times, nil
}

func readVec3s(doc *gltf.Document, acc *uint32) ([][3]float32, error) {
	raw, err := readAccessor(doc, acc)
	if raw == nil || err != nil {
		return nil, err
	}
	vals, ok := raw.([][3]float32)
	if !ok {
		return nil, fmt.Errorf("%w: keys are %T, expected vec3", ErrBadAnimation, raw)
	}
	return vals, nil
}

func readVec4s(doc *gltf.Document, acc *uint32) ([][4]float32, error) {
	raw, err := readAccessor(doc, acc)
	if raw == nil || err != nil {
		return nil, err
	}
	vals, ok := raw.([][4]float32)
	if !ok {
		return nil, fmt.Errorf("%w: keys are %T, expected vec4", ErrBadAnimation, raw)
	}
	return vals, nil
}

func readAccessor(doc *gltf.Document, acc *uint32) (interface{}, error) {
	if acc == nil || int(*acc) >= len(doc.Accessors) {
		return nil, nil
	}
	return modeler.ReadAccessor(doc, doc.Accessors[*acc], nil)
}

func vec3(v [3]float32) math.Vec3 {
	return math.Vec3{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

func quat(v [4]float32) math.Quat {
	return math.Quat{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2]), W: float64(v[3])}
}
