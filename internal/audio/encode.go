package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const (
	ffmpegBinary  = "ffmpeg"
	ffmpegTimeout = 60 * time.Second
)

// Format is an output container format.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
	FormatOGG Format = "ogg"
)

// SupportedFormats lists every format Encode accepts.
var SupportedFormats = []Format{FormatWAV, FormatMP3, FormatOGG}

// EncodeResult is the outcome of an encode. Exactly one of Data or Path is
// set, depending on whether a destination was requested. Format reports the
// format actually produced, which may differ from the requested one when
// the lossy encoder is unavailable. Callers that care about deviation
// check this field.
type EncodeResult struct {
	Data   []byte
	Path   string
	Format Format
}

// Encode converts the buffer into the requested container format.
//
// wav is encoded directly. mp3 and ogg are produced by writing a temporary
// wav file and transcoding it with ffmpeg; when ffmpeg is unavailable the
// encode degrades to wav output with a warning, a successful encode at a
// different format rather than an error. When destination is non-empty the output
// is written there and Path is set; otherwise Data holds the bytes.
func (c *Codec) Encode(b *Buffer, format Format, destination string) (*EncodeResult, error) {
	switch format {
	case FormatWAV, FormatMP3, FormatOGG:
	default:
		return nil, &UnsupportedFormatError{Format: string(format), Supported: SupportedFormats}
	}

	if format != FormatWAV && !c.caps.LossyEncode {
		slog.Warn("Lossy encoder unavailable, falling back to wav", "requested_format", format)
		format = FormatWAV
	}

	if format == FormatWAV {
		return c.encodeWAV(b, destination)
	}

	return c.transcode(b, format, destination)
}

func (c *Codec) encodeWAV(b *Buffer, destination string) (*EncodeResult, error) {
	if destination != "" {
		if err := c.writeWAVFile(b, destination); err != nil {
			return nil, err
		}

		slog.Info("Saved wav audio", "path", destination)
		return &EncodeResult{Path: destination, Format: FormatWAV}, nil
	}

	tmp := c.tempPath("wav")
	defer os.Remove(tmp)

	if err := c.writeWAVFile(b, tmp); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("%w: read temporary wav: %v", ErrEncoding, err)
	}

	return &EncodeResult{Data: data, Format: FormatWAV}, nil
}

func (c *Codec) writeWAVFile(b *Buffer, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrEncoding, path, err)
	}

	enc := wav.NewEncoder(f, b.SampleRate, 16, 1, 1)
	if err := enc.Write(intBufferFromSamples(b)); err != nil {
		f.Close()
		return fmt.Errorf("%w: write wav: %v", ErrEncoding, err)
	}

	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("%w: finalize wav: %v", ErrEncoding, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrEncoding, path, err)
	}

	return nil
}

// transcode produces a lossy format by way of a temporary wav file.
func (c *Codec) transcode(b *Buffer, format Format, destination string) (*EncodeResult, error) {
	tmpWAV := c.tempPath("wav")
	defer os.Remove(tmpWAV)

	if err := c.writeWAVFile(b, tmpWAV); err != nil {
		return nil, err
	}

	out := destination
	if out == "" {
		out = c.tempPath(string(format))
		defer os.Remove(out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ffmpegTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegBinary, "-y", "-i", tmpWAV, out)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: transcode to %s: %v: %s", ErrEncoding, format, err, output)
	}

	if destination != "" {
		slog.Info("Saved audio", "format", format, "path", destination)
		return &EncodeResult{Path: destination, Format: format}, nil
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("%w: read transcoded output: %v", ErrEncoding, err)
	}

	return &EncodeResult{Data: data, Format: format}, nil
}

func (c *Codec) tempPath(ext string) string {
	return filepath.Join(c.tempDir, fmt.Sprintf("resona_%s.%s", uuid.NewString(), ext))
}
