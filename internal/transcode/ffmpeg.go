package transcode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Process is a running encoder accepting chunks on its input. The
// implementation owns draining of the encoder's log output; Done is
// closed when the process has exited, after which Err reports why.
type Process interface {
	Write(chunk []byte) error
	Kill()
	Done() <-chan struct{}
	Err() error
}

// Starter spawns one encoder process. Swapped for a fake in tests.
type Starter func(ctx context.Context) (Process, error)

// Options is the fixed encoding contract for every spawned encoder.
// Destination is the fully assembled ingest URL including the secret
// stream key.
type Options struct {
	FFmpegPath       string
	FrameRate        int
	KeyframeInterval int
	VideoBitrate     string
	AudioBitrate     string
	Destination      string
}

// Args builds the ffmpeg invocation: WebM chunks on stdin, FLV pushed
// to the ingest URL. Constant frame rate and keyframe cadence so the
// ingest endpoint can segment the stream predictably.
func (o Options) Args() []string {
	return []string{
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-r", strconv.Itoa(o.FrameRate),
		"-g", strconv.Itoa(o.KeyframeInterval),
		"-keyint_min", strconv.Itoa(o.FrameRate),
		"-b:v", o.VideoBitrate,
		"-crf", "25",
		"-pix_fmt", "yuv420p",
		"-sc_threshold", "0",
		"-profile:v", "main",
		"-level", "3.1",
		"-c:a", "aac",
		"-b:a", o.AudioBitrate,
		"-ar", "32000",
		"-f", "flv",
		o.Destination,
	}
}

// NewStarter returns a Starter that spawns ffmpeg with the given
// options. Stderr is drained continuously and surfaced at debug level
// so the process never blocks on its log pipe.
func NewStarter(opts Options) Starter {
	return func(ctx context.Context) (Process, error) {
		cmd := exec.CommandContext(ctx, opts.FFmpegPath, opts.Args()...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start ffmpeg: %w", err)
		}

		p := &ffmpegProcess{cmd: cmd, stdin: stdin, done: make(chan struct{})}
		go drainLogs(stderr)
		go func() {
			p.err = cmd.Wait()
			close(p.done)
		}()
		log.Info().Str("module", "transcode").Int("pid", cmd.Process.Pid).Msg("ffmpeg started")
		return p, nil
	}
}

type ffmpegProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
	err   error
}

func (p *ffmpegProcess) Write(chunk []byte) error {
	_, err := p.stdin.Write(chunk)
	return err
}

func (p *ffmpegProcess) Kill() {
	_ = p.stdin.Close()
	_ = p.cmd.Process.Kill()
}

func (p *ffmpegProcess) Done() <-chan struct{} { return p.done }

// Err is valid only after Done is closed.
func (p *ffmpegProcess) Err() error { return p.err }

func drainLogs(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log.Debug().Str("module", "transcode").Str("ffmpeg", sc.Text()).Msg("encoder log")
	}
}
