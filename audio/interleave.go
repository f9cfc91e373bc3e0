package audio

// Interleave writes the buffer's frames into dst as interleaved samples
// (frame-major: c0f0, c1f0, ..., c0f1, ...). Returns the number of frames
// written, clamped to the capacity of dst.
func (b *Buffer) Interleave(dst []float32) int {
	chans := len(b.channels)
	frames := min(b.length, len(dst)/chans)
	for ch, c := range b.channels {
		for i := range frames {
			dst[i*chans+ch] = c[i]
		}
	}
	return frames
}

// Deinterleave fills the buffer's channels from interleaved src samples.
// Returns the number of frames read, clamped to the buffer length.
func (b *Buffer) Deinterleave(src []float32) int {
	chans := len(b.channels)
	frames := min(b.length, len(src)/chans)
	for ch, c := range b.channels {
		for i := range frames {
			c[i] = src[i*chans+ch]
		}
	}
	return frames
}

// InterleaveInto appends frames [start, start+frames) into dst at dstFrame,
// interleaved. Used by the destination node to fill device callbacks block
// by block without reslicing per quantum.
func (b *Buffer) InterleaveInto(dst []float32, dstFrame, start, frames int) int {
	chans := len(b.channels)
	if n := b.length - start; frames > n {
		frames = n
	}
	if n := len(dst)/chans - dstFrame; frames > n {
		frames = n
	}
	if frames <= 0 {
		return 0
	}
	for ch, c := range b.channels {
		for i := range frames {
			dst[(dstFrame+i)*chans+ch] = c[start+i]
		}
	}
	return frames
}
