package threejs

import (
	"errors"
	"fmt"
	gomath "math"

	"github.com/Faultbox/threexport/pkg/math"
)

// ErrUnsupportedGeometry reports a polygon the format cannot express.
var ErrUnsupportedGeometry = errors.New("unsupported geometry")

// Precision is the decimal digit count applied to every exported float.
const Precision = 8

// Round rounds x half away from zero at the given decimal digit count.
func Round(x float64, digits int) float64 {
	pow := gomath.Pow(10, float64(digits))
	return gomath.Round(x*pow) / pow
}

// roundVec3 flattens v to a rounded x,y,z triple.
func roundVec3(v math.Vec3) []float64 {
	return []float64{Round(v.X, Precision), Round(v.Y, Precision), Round(v.Z, Precision)}
}

// roundQuat flattens q to a rounded x,y,z,w quadruple.
func roundQuat(q math.Quat) []float64 {
	return []float64{Round(q.X, Precision), Round(q.Y, Precision), Round(q.Z, Precision), Round(q.W, Precision)}
}

// BitLayout assigns the bit positions of the per-face attribute flags.
// Consumers of this format have disagreed about the material bit position
// across format revisions, so the layout stays configurable.
type BitLayout struct {
	Quad     uint
	Material uint
	UV       uint
	Normal   uint
}

// DefaultBitLayout is the layout current consumers expect.
var DefaultBitLayout = BitLayout{Quad: 0, Material: 1, UV: 3, Normal: 5}

// Encode packs one face's attribute flags into a bitmask integer.
// vertexCount must be 3 or 4.
func (l BitLayout) Encode(vertexCount int, hasMaterial, hasUV, hasNormals bool) (int, error) {
	var mask int
	switch vertexCount {
	case 4:
		mask = 1 << l.Quad
	case 3:
		mask = 0
	default:
		return 0, fmt.Errorf("%w: face with %d vertices", ErrUnsupportedGeometry, vertexCount)
	}

	if hasMaterial {
		mask |= 1 << l.Material
	}
	if hasUV {
		mask |= 1 << l.UV
	}
	if hasNormals {
		mask |= 1 << l.Normal
	}
	return mask, nil
}

func (l BitLayout) isZero() bool { return l == (BitLayout{}) }
