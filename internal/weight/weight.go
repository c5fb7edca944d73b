// Package weight implements the fixed-point scalar type used for every
// network parameter, activation, and gradient in the training core.
//
// A Weight is a Q(31-Prec).Prec signed fixed-point number backed by an
// int32: Prec fractional bits, the rest integer and sign. Arithmetic is
// truncating, not saturating — overflow and underflow behave exactly as
// plain int32 overflow/underflow would, matching the original fixed-point
// core this package is a port of.
package weight

import (
	"encoding/binary"
	"io"
)

// Prec is the number of fractional bits carried by a Weight.
const Prec = 21

// One is the fixed-point representation of the real value 1.0.
const One Weight = 1 << Prec

// Weight is a Q(31-Prec).Prec fixed-point scalar.
type Weight int32

// Mul returns a*b computed with a 64-bit intermediate, truncated back down
// to Prec fractional bits. This is the only multiplication operator the
// fixed-point domain needs: addition and subtraction are ordinary int32
// arithmetic and require no helper.
func Mul(a, b Weight) Weight {
	return Weight((int64(a) * int64(b)) >> Prec)
}

// Rate computes min + (max-min)*rate, where rate is a fixed-point fraction
// in [0, 1) represented as a uint16 over 65536 steps. Used by the weight
// initializer to turn PRNG draws into a bounded real value.
func Rate(min, max Weight, rate uint16) Weight {
	return min + Weight((int64(max-min)*int64(rate))/65536)
}

// Normalize converts a fixed-point Weight to its real-valued float64
// equivalent. Used only at domain boundaries (loss reporting, gradient
// moment estimation) — never inside the hot forward/backward path.
func Normalize(w Weight) float64 {
	return float64(w) / float64(One)
}

// Denormalize converts a real-valued float64 back into fixed-point,
// truncating toward zero. The inverse of Normalize, used when real-valued
// inputs (CSV columns, CLI bounds) are brought into the Weight domain.
func Denormalize(v float64) Weight {
	return Weight(v * float64(One))
}

// ReadFrom decodes a single little-endian 32-bit Weight from r, matching
// the original format's integer_load byte order.
func ReadFrom(r io.Reader) (Weight, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return Weight(binary.LittleEndian.Uint32(buf[:])), nil
}

// WriteTo encodes w as a little-endian 32-bit integer to w2, matching the
// original format's integer_save byte order.
func WriteTo(w2 io.Writer, w Weight) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(w))
	_, err := w2.Write(buf[:])
	return err
}
