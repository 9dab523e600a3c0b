package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/melprint/pkg/utils"
)

type ConvertWAVConfig struct {
	SampleRate int
}

// ConvertToMonoWAV shells out to ffmpeg and writes a 16-bit mono WAV into outputDir.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertWAVConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return "", fmt.Errorf("%w: %s needs ffmpeg, which is not installed", ErrUnsupportedFormat, filepath.Ext(inputPath))
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	baseName := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, baseName+".wav")

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1", // mono
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}

type LoadOptions struct {
	// TempDir receives ffmpeg output. Defaults to os.TempDir().
	TempDir string
	// SampleRate applies only when ffmpeg is used; native decoders keep the file's rate.
	SampleRate int
}

// Load decodes any supported file into mono samples. WAV and MP3 are read
// natively, everything else goes through ffmpeg.
func Load(ctx context.Context, path string, opts LoadOptions) ([]float64, int, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, 0, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		samples, rate, err := ReadWAV(path)
		if !errors.Is(err, ErrUnsupportedFormat) {
			return samples, rate, err
		}
		// float or compressed WAV payloads
	case ".mp3":
		return ReadMP3(path)
	}

	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	wavPath, err := ConvertToMonoWAV(ctx, path, filepath.Join(tempDir, "melprint"), ConvertWAVConfig{SampleRate: opts.SampleRate})
	if err != nil {
		return nil, 0, err
	}
	defer os.Remove(wavPath)

	return ReadWAV(wavPath)
}
