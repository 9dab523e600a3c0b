package main

import (
	"context"

	"github.com/himanishpuri/melprint/pkg/melprint/audio"
	"github.com/himanishpuri/melprint/pkg/melprint/fingerprint"
)

func loadBuffer(path string) (fingerprint.SampleBuffer, error) {
	samples, rate, err := audio.Load(context.Background(), path, audio.LoadOptions{
		TempDir:    tempDir,
		SampleRate: pipeline.SampleRate,
	})
	if err != nil {
		return fingerprint.SampleBuffer{}, err
	}
	return fingerprint.SampleBuffer{Samples: samples, SampleRate: rate}, nil
}
