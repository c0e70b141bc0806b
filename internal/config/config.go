package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	DBPath     string        `mapstructure:"db_path"`

	Ingest    IngestConfig    `mapstructure:"ingest"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
}

// IngestConfig names the public streaming endpoint. Key is the secret
// stream key supplied per deployment; it is appended to the URL and
// must never be logged.
type IngestConfig struct {
	URL string `mapstructure:"url"`
	Key string `mapstructure:"key"`
}

type TranscodeConfig struct {
	FFmpegPath       string `mapstructure:"ffmpeg_path"`
	FrameRate        int    `mapstructure:"frame_rate"`
	KeyframeInterval int    `mapstructure:"keyframe_interval"`
	VideoBitrate     string `mapstructure:"video_bitrate"`
	AudioBitrate     string `mapstructure:"audio_bitrate"`
	BufferChunks     int    `mapstructure:"buffer_chunks"`
}

// Destination assembles the full push URL from the configured base and
// the secret stream key.
func (c *Config) Destination() string {
	return fmt.Sprintf("%s/%s", c.Ingest.URL, c.Ingest.Key)
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 9000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("db_path", "./streamloop.db")
	v.SetDefault("ingest.url", "rtmp://a.rtmp.youtube.com/live2")
	v.SetDefault("transcode.ffmpeg_path", "ffmpeg")
	v.SetDefault("transcode.frame_rate", 25)
	v.SetDefault("transcode.keyframe_interval", 50)
	v.SetDefault("transcode.video_bitrate", "2500k")
	v.SetDefault("transcode.audio_bitrate", "128k")
	v.SetDefault("transcode.buffer_chunks", 256)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
