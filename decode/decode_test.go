package decode

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"
)

// buildWAV writes a canonical 44-byte-header 16-bit PCM WAV file.
func buildWAV(samples []int16, sampleRate, channels int) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+2*i:], uint16(s))
	}
	return buf
}

func TestDecodeWAV(t *testing.T) {
	// Stereo, 4 frames: L = 0.5, R = -0.5 (approximately, in int16).
	samples := make([]int16, 8)
	for i := 0; i < 8; i += 2 {
		samples[i] = 16384
		samples[i+1] = -16384
	}
	data := buildWAV(samples, 44100, 2)

	buf, err := DecodeBytes(data, 0)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if buf.ChannelCount() != 2 || buf.Length() != 4 {
		t.Fatalf("got %dx%d", buf.ChannelCount(), buf.Length())
	}
	if buf.SampleRate() != 44100 {
		t.Fatalf("rate %v", buf.SampleRate())
	}
	for i := range 4 {
		if math.Abs(float64(buf.Channel(0)[i])-0.5) > 1e-3 {
			t.Fatalf("L[%d] = %v", i, buf.Channel(0)[i])
		}
		if math.Abs(float64(buf.Channel(1)[i])+0.5) > 1e-3 {
			t.Fatalf("R[%d] = %v", i, buf.Channel(1)[i])
		}
	}
}

func TestDecodeWAV_RateConversion(t *testing.T) {
	samples := make([]int16, 2000)
	for i := range samples {
		samples[i] = 16384
	}
	data := buildWAV(samples, 22050, 1)

	buf, err := DecodeBytes(data, 44100)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if buf.SampleRate() != 44100 {
		t.Fatalf("rate %v, want 44100", buf.SampleRate())
	}
	wantLen := 4000
	if buf.Length() != wantLen {
		t.Fatalf("length %d, want %d", buf.Length(), wantLen)
	}
	mid := buf.Channel(0)[buf.Length()/2]
	if math.Abs(float64(mid)-0.5) > 1e-2 {
		t.Fatalf("mid sample %v, want ~0.5", mid)
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	if _, err := DecodeBytes([]byte("nope nope nope"), 0); err == nil {
		t.Fatal("expected unknown-format error")
	}
	if _, err := DecodeBytes(nil, 0); err == nil {
		t.Fatal("expected empty-input error")
	}
}

func TestDecodeBase64PCM_Interleaved(t *testing.T) {
	// Two channels, two frames: [L0=8192, R0=-8192, L1=16384, R1=-16384].
	raw := make([]byte, 8)
	l0, r0, l1, r1 := int16(8192), int16(-8192), int16(16384), int16(-16384)
	binary.LittleEndian.PutUint16(raw[0:], uint16(l0))
	binary.LittleEndian.PutUint16(raw[2:], uint16(r0))
	binary.LittleEndian.PutUint16(raw[4:], uint16(l1))
	binary.LittleEndian.PutUint16(raw[6:], uint16(r1))
	b64 := base64.StdEncoding.EncodeToString(raw)

	buf, err := DecodeBase64PCM(b64, 48000, 2, true)
	if err != nil {
		t.Fatalf("DecodeBase64PCM: %v", err)
	}
	if buf.Length() != 2 {
		t.Fatalf("length %d", buf.Length())
	}
	if math.Abs(float64(buf.Channel(0)[1])-0.5) > 1e-3 {
		t.Fatalf("L[1] = %v", buf.Channel(0)[1])
	}
	if math.Abs(float64(buf.Channel(1)[0])+0.25) > 1e-3 {
		t.Fatalf("R[0] = %v", buf.Channel(1)[0])
	}
}

func TestDecodeBase64PCM_Planar(t *testing.T) {
	raw := make([]byte, 8)
	l0, l1, r0, r1 := int16(8192), int16(16384), int16(-8192), int16(-16384)
	binary.LittleEndian.PutUint16(raw[0:], uint16(l0)) // L0
	binary.LittleEndian.PutUint16(raw[2:], uint16(l1)) // L1
	binary.LittleEndian.PutUint16(raw[4:], uint16(r0)) // R0
	binary.LittleEndian.PutUint16(raw[6:], uint16(r1)) // R1
	b64 := base64.StdEncoding.EncodeToString(raw)

	buf, err := DecodeBase64PCM(b64, 48000, 2, false)
	if err != nil {
		t.Fatalf("DecodeBase64PCM: %v", err)
	}
	if math.Abs(float64(buf.Channel(0)[1])-0.5) > 1e-3 {
		t.Fatalf("L[1] = %v", buf.Channel(0)[1])
	}
	if math.Abs(float64(buf.Channel(1)[1])+0.5) > 1e-3 {
		t.Fatalf("R[1] = %v", buf.Channel(1)[1])
	}
}

func TestDecodeBase64PCM_Validation(t *testing.T) {
	if _, err := DecodeBase64PCM("AAAA", 0, 2, true); err == nil {
		t.Fatal("expected rate error")
	}
	if _, err := DecodeBase64PCM("not base64!!!", 48000, 2, true); err == nil {
		t.Fatal("expected base64 error")
	}
}

func TestWavWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")
	w, err := NewWavWriter(path, 44100, 2)
	if err != nil {
		t.Fatalf("NewWavWriter: %v", err)
	}
	frames := []float32{0.5, -0.5, 0.25, -0.25}
	if err := w.WriteFrames(frames); err != nil {
		t.Fatalf("WriteFrames: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	buf, err := DecodeFile(path, 0)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if buf.ChannelCount() != 2 || buf.Length() != 2 {
		t.Fatalf("got %dx%d", buf.ChannelCount(), buf.Length())
	}
	if math.Abs(float64(buf.Channel(0)[0])-0.5) > 1e-3 {
		t.Fatalf("L[0] = %v", buf.Channel(0)[0])
	}
	if math.Abs(float64(buf.Channel(1)[1])+0.25) > 1e-3 {
		t.Fatalf("R[1] = %v", buf.Channel(1)[1])
	}
}
