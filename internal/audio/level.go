package audio

import (
	"encoding/binary"
	"math"
)

// RMSLevel computes the normalized 0..1 RMS amplitude of an s16le PCM chunk.
// A trailing odd byte is ignored.
func RMSLevel(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < samples; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}
