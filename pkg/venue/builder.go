package venue

import (
	"encoding/binary"

	"vp-trade/pkg/types"
)

// BuilderTagSize is the width of the attribution tag in bytes
const BuilderTagSize = 2

// AppendBuilderTag appends the 2-byte big-endian builder tag after the ABI
// encoded call when opt carries a non-zero tag. The venue contracts read it
// as raw trailing bytes.
func AppendBuilderTag(data []byte, opt *types.Option) []byte {
	tag, ok := opt.BuilderTag()
	if !ok {
		return data
	}
	out := make([]byte, len(data), len(data)+BuilderTagSize)
	copy(out, data)
	return binary.BigEndian.AppendUint16(out, tag)
}
