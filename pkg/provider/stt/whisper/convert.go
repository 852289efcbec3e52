package whisper

// pcmToFloat32 converts signed 16-bit mono PCM samples to the float32 range
// [-1, 1) expected by whisper.cpp.
func pcmToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}
