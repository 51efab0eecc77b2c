package config

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket  string        `yaml:"minio_bucket"`
	MediaBaseURL string        `yaml:"media_base_url"`
	App          App           `yaml:"app"`
	DB           *sql.DB       `yaml:"db"`
	Queue        *RabbitMQ     `yaml:"rabbitmq"`
	Storage      *minio.Client `yaml:"storage"`
	Server       Server        `yaml:"server"`
	Upload       Upload        `yaml:"upload"`
	Pipeline     Pipeline      `yaml:"pipeline"`
	Audit        Audit         `yaml:"audit"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

// Upload bounds what ingestion accepts before any row is created.
type Upload struct {
	MaxSizeBytes      int64    `yaml:"max_size_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// Pipeline carries the analysis and auto-segmentation tuning constants.
// These are operator settings, never user input.
type Pipeline struct {
	SilenceThresholdDb int    `yaml:"silence_threshold_db"`
	MinSilenceMs       int64  `yaml:"min_silence_ms"`
	SilenceGapMs       int64  `yaml:"silence_gap_ms"`
	PeakBuckets        int    `yaml:"peak_buckets"`
	FFmpegPath         string `yaml:"ffmpeg_path"`
	FFprobePath        string `yaml:"ffprobe_path"`
}

// Audit selects the sink every mutating operation reports to. With no
// brokers configured the log sink is used.
type Audit struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	viper.SetDefault("upload.max_size_bytes", 200<<20)
	viper.SetDefault("upload.allowed_extensions", []string{"mp3"})
	viper.SetDefault("pipeline.silence_threshold_db", -40)
	viper.SetDefault("pipeline.min_silence_ms", 500)
	viper.SetDefault("pipeline.silence_gap_ms", 150)
	viper.SetDefault("pipeline.peak_buckets", 800)
	viper.SetDefault("pipeline.ffmpeg_path", "ffmpeg")
	viper.SetDefault("pipeline.ffprobe_path", "ffprobe")
	viper.SetDefault("audit.kafka_topic", "audit.log")

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	return &Config{
		MinIOBucket:  viper.GetString("minio.bucket"),
		MediaBaseURL: viper.GetString("media_base_url"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Upload: Upload{
			MaxSizeBytes:      viper.GetInt64("upload.max_size_bytes"),
			AllowedExtensions: viper.GetStringSlice("upload.allowed_extensions"),
		},
		Pipeline: Pipeline{
			SilenceThresholdDb: viper.GetInt("pipeline.silence_threshold_db"),
			MinSilenceMs:       viper.GetInt64("pipeline.min_silence_ms"),
			SilenceGapMs:       viper.GetInt64("pipeline.silence_gap_ms"),
			PeakBuckets:        viper.GetInt("pipeline.peak_buckets"),
			FFmpegPath:         viper.GetString("pipeline.ffmpeg_path"),
			FFprobePath:        viper.GetString("pipeline.ffprobe_path"),
		},
		Audit: Audit{
			KafkaBrokers: viper.GetStringSlice("audit.kafka_brokers"),
			KafkaTopic:   viper.GetString("audit.kafka_topic"),
		},
		DB:      db,
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}
