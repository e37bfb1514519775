package reading

import (
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
)

// Fingerprint is a deterministic checksum of a reading's normalized field
// values, used for change comparison. CRC-32 is deliberate: the goal is
// cheap equality testing, not cryptographic strength.
type Fingerprint uint32

func (fp Fingerprint) String() string {
	return fmt.Sprintf("%08x", uint32(fp))
}

// Canonical serializes the reading's field map into a stable form: every
// known field in lexical order, absent fields as an explicit "null" marker,
// values rounded to three decimals. Two readings with the same normalized
// values always serialize identically regardless of how their maps were
// populated.
func Canonical(r Reading) string {
	parts := make([]string, 0, len(Fields()))
	for _, f := range Fields() {
		if v, ok := r.Values[f]; ok {
			parts = append(parts, string(f)+"="+normalize(v))
		} else {
			parts = append(parts, string(f)+"=null")
		}
	}
	return strings.Join(parts, ";")
}

// Hash computes the reading's fingerprint from its canonical serialization.
func Hash(r Reading) Fingerprint {
	return Fingerprint(crc32.ChecksumIEEE([]byte(Canonical(r))))
}

func normalize(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	// -0.0004 rounds to "-0.000"; fold it onto zero so the sign of a
	// vanishing value cannot produce a spurious change.
	if s == "-0.000" {
		return "0.000"
	}
	return s
}
