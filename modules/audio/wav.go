package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrNotWAV = errors.New("not a PCM WAV stream")

const wavHeaderSize = 44

// Format describes interleaved PCM samples.
type Format struct {
	SampleRate    int `json:"sampleRate"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bitsPerSample"`
}

func (f Format) validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	if f.BitsPerSample != 8 && f.BitsPerSample != 16 {
		return fmt.Errorf("unsupported bits per sample %d, use 8 or 16", f.BitsPerSample)
	}
	return nil
}

func (f Format) bytesPerSample() int {
	return f.BitsPerSample / 8
}

// EncodeWAV renders samples in -1..1 as a RIFF WAV file. Out of range
// samples are clipped.
func EncodeWAV(samples []float64, f Format) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	data := encodePCM(samples, f)
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(data)))
	writeHeader(buf, f, len(data))
	buf.Write(data)
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, f Format, dataLen int) {
	blockAlign := f.Channels * f.bytesPerSample()
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.BitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
}

func encodePCM(samples []float64, f Format) []byte {
	out := make([]byte, len(samples)*f.bytesPerSample())
	for i, s := range samples {
		s = max(-1, min(1, s))
		switch f.BitsPerSample {
		case 8:
			// 8 bit PCM is unsigned around 128
			out[i] = uint8(math.Round(s*127) + 128)
		case 16:
			binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(math.Round(s*math.MaxInt16))))
		}
	}
	return out
}

func decodePCM(data []byte, f Format) []float64 {
	n := len(data) / f.bytesPerSample()
	out := make([]float64, n)
	for i := range out {
		switch f.BitsPerSample {
		case 8:
			out[i] = float64(int(data[i])-128) / 127
		case 16:
			out[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / math.MaxInt16
		}
	}
	return out
}

// DecodeWAV reads a RIFF WAV file, skipping chunks other than fmt and
// data.
func DecodeWAV(data []byte) ([]float64, Format, error) {
	var f Format
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, f, ErrNotWAV
	}
	pos := 12
	haveFmt := false
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4:]))
		body := data[pos+8 : min(len(data), pos+8+size)]
		switch id {
		case "fmt ":
			if len(body) < 16 || binary.LittleEndian.Uint16(body) != 1 {
				return nil, f, ErrNotWAV
			}
			f.Channels = int(binary.LittleEndian.Uint16(body[2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(body[4:]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:]))
			if err := f.validate(); err != nil {
				return nil, f, fmt.Errorf("%w: %w", ErrNotWAV, err)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, f, ErrNotWAV
			}
			return decodePCM(body, f), f, nil
		}
		// chunks are padded to an even size
		pos += 8 + size + size%2
	}
	return nil, f, ErrNotWAV
}

// Tone is a sine wave of freq Hz lasting ms milliseconds at half volume.
func Tone(freq float64, ms int, sampleRate int) []float64 {
	n := sampleRate * ms / 1000
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}
