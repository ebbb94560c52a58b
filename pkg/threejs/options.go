package threejs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidOptions reports a malformed export option string.
var ErrInvalidOptions = errors.New("invalid export options")

// ComponentKeys lists every option token an option string may carry, in the
// order the options command prints them.
var ComponentKeys = []string{
	"vertices", "normals", "colors", "uvs", "faces",
	"materials", "diffuseMaps", "specularMaps", "glossMaps", "bumpMaps",
	"incandescenceMasks", "copyTextures",
	"bones", "skeletalAnim", "bakeAnimations", "prettyOutput",
	"strict",
}

// Options selects which sections an export emits and carries the numeric
// parameters some sections need.
type Options struct {
	Vertices           bool
	Normals            bool
	Colors             bool
	UVs                bool
	Faces              bool
	Materials          bool
	DiffuseMaps        bool
	SpecularMaps       bool
	GlossMaps          bool
	BumpMaps           bool
	IncandescenceMasks bool
	CopyTextures       bool
	Bones              bool
	SkeletalAnim       bool
	BakeAnimations     bool
	PrettyOutput       bool

	// Strict promotes failed material and parent-joint name lookups from
	// the -1 sentinel to an export error.
	Strict bool

	// InfluencesPerVertex is the fixed per-vertex skin width. Meaningful
	// only when Bones is set.
	InfluencesPerVertex int

	// StartFrame, EndFrame and StepFrame bound the baked frame sequence,
	// end exclusive. Meaningful only when BakeAnimations is set.
	StartFrame int
	EndFrame   int
	StepFrame  int

	// Bits overrides the face bitmask layout. The zero value selects
	// DefaultBitLayout.
	Bits BitLayout
}

// ParseOptions turns an option string into Options. A component is enabled
// when its key occurs anywhere in the string; unrecognized tokens are
// ignored. Two keys consume trailing numeric arguments:
// "bones <influencesPerVertex>" and
// "bakeAnimations <startFrame> <endFrame> <stepFrame>".
func ParseOptions(s string) (Options, error) {
	var o Options
	o.Vertices = strings.Contains(s, "vertices")
	o.Normals = strings.Contains(s, "normals")
	o.Colors = strings.Contains(s, "colors")
	o.UVs = strings.Contains(s, "uvs")
	o.Faces = strings.Contains(s, "faces")
	o.Materials = strings.Contains(s, "materials")
	o.DiffuseMaps = strings.Contains(s, "diffuseMaps")
	o.SpecularMaps = strings.Contains(s, "specularMaps")
	o.GlossMaps = strings.Contains(s, "glossMaps")
	o.BumpMaps = strings.Contains(s, "bumpMaps")
	o.IncandescenceMasks = strings.Contains(s, "incandescenceMasks")
	o.CopyTextures = strings.Contains(s, "copyTextures")
	o.Bones = strings.Contains(s, "bones")
	o.SkeletalAnim = strings.Contains(s, "skeletalAnim")
	o.BakeAnimations = strings.Contains(s, "bakeAnimations")
	o.PrettyOutput = strings.Contains(s, "prettyOutput")
	o.Strict = strings.Contains(s, "strict")

	if o.Bones {
		args, err := trailingInts(s, "bones", 1)
		if err != nil {
			return Options{}, err
		}
		o.InfluencesPerVertex = args[0]
		if o.InfluencesPerVertex < 0 {
			return Options{}, fmt.Errorf("%w: bones influence count must not be negative", ErrInvalidOptions)
		}
	}

	if o.BakeAnimations {
		args, err := trailingInts(s, "bakeAnimations", 3)
		if err != nil {
			return Options{}, err
		}
		o.StartFrame, o.EndFrame, o.StepFrame = args[0], args[1], args[2]
		if o.StepFrame == 0 {
			return Options{}, fmt.Errorf("%w: bakeAnimations step must be nonzero", ErrInvalidOptions)
		}
	}

	return o, nil
}

// trailingInts reads n integers from the whitespace-separated tokens
// following key's first occurrence in s.
func trailingInts(s, key string, n int) ([]int, error) {
	fields := strings.Fields(s[strings.Index(s, key):])
	if len(fields) < n+1 {
		return nil, fmt.Errorf("%w: %s needs %d numeric argument(s)", ErrInvalidOptions, key, n)
	}

	out := make([]int, n)
	for i := range out {
		v, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %d is not an integer: %q", ErrInvalidOptions, key, i+1, fields[i+1])
		}
		out[i] = v
	}
	return out, nil
}
