package transcode

import (
	"strings"
	"testing"
)

func TestArgsEncodingContract(t *testing.T) {
	opts := Options{
		FFmpegPath:       "ffmpeg",
		FrameRate:        25,
		KeyframeInterval: 50,
		VideoBitrate:     "2500k",
		AudioBitrate:     "128k",
		Destination:      "rtmp://ingest.example/live/k3y",
	}
	args := strings.Join(opts.Args(), " ")

	for _, want := range []string{
		"-i -",
		"-c:v libx264",
		"-r 25",
		"-g 50",
		"-c:a aac",
		"-b:a 128k",
		"-f flv rtmp://ingest.example/live/k3y",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}

	if args[len(args)-len(opts.Destination):] != opts.Destination {
		t.Errorf("destination must be the final argument: %s", args)
	}
}
