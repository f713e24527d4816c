package capture

// ApplyGain scales a raw PCM16 frame by sensitivity/50, so 50 is unity
// gain, and clips the result to the int16 range. The input frame is
// not modified.
func ApplyGain(frame []byte, sensitivity int) []byte {
	gain := float64(sensitivity) / 50.0
	out := make([]byte, len(frame))
	for i := 0; i+1 < len(frame); i += 2 {
		sample := int16(frame[i]) | int16(frame[i+1])<<8
		scaled := float64(sample) * gain
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		s := int16(scaled)
		out[i] = byte(s)
		out[i+1] = byte(s >> 8)
	}
	return out
}
