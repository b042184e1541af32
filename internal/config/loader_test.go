package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/herdwatch/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.AlertRecipients, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("HERDWATCH_ADDR", ":8080")
			_ = os.Setenv("HERDWATCH_QUEUE_SIZE", "500")
			_ = os.Setenv("HERDWATCH_WORKER_COUNT", "16")
			_ = os.Setenv("HERDWATCH_EVALUATION_INTERVAL", "45s")
			_ = os.Setenv("HERDWATCH_ACTIVE_FENCE", "north-pasture")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.EvaluationInterval, convey.ShouldEqual, 45*time.Second)
				convey.So(cfg.ActiveFence, convey.ShouldEqual, "north-pasture")
			})
		})

		convey.Convey("When list values come from the environment", func() {
			_ = os.Setenv("HERDWATCH_SMTP_HOST", "smtp.example.com")
			_ = os.Setenv("HERDWATCH_ALERT_RECIPIENTS", "farmer@example.com,vet@example.com")
			_ = os.Setenv("HERDWATCH_KAFKA_BROKERS", "k1:9092,k2:9092")
			_ = os.Setenv("HERDWATCH_KAFKA_ALERTS_TOPIC", "herd.alerts")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then comma separated strings become slices", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.AlertRecipients, convey.ShouldResemble, []string{"farmer@example.com", "vet@example.com"})
				convey.So(cfg.KafkaBrokers, convey.ShouldResemble, []string{"k1:9092", "k2:9092"})
				convey.So(cfg.KafkaAlertsTopic, convey.ShouldEqual, "herd.alerts")
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
store: sqlite
sqlite_path: /tmp/herd.db
worker_count: 24
alert_timeout: 3s
alert_recipients:
  - farmer@example.com
smtp_host: smtp.example.com
`)
			_ = os.Setenv("HERDWATCH_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreSQLite)
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/herd.db")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 24)
				convey.So(cfg.AlertTimeout, convey.ShouldEqual, 3*time.Second)
				convey.So(cfg.AlertRecipients, convey.ShouldResemble, []string{"farmer@example.com"})
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			})
		})

		convey.Convey("When both file and environment are set", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
worker_count: 24
queue_size: 300
`)
			_ = os.Setenv("HERDWATCH_CONFIG", tmpFile)
			_ = os.Setenv("HERDWATCH_ADDR", ":8080")
			_ = os.Setenv("HERDWATCH_WORKER_COUNT", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When loading config with an invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("HERDWATCH_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a non-existent file", func() {
			_ = os.Setenv("HERDWATCH_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("HERDWATCH_QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the postgres store is selected without a dsn", func() {
			_ = os.Setenv("HERDWATCH_STORE", "postgres")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "postgres_dsn")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"HERDWATCH_CONFIG",
		"HERDWATCH_ADDR",
		"HERDWATCH_QUEUE_SIZE",
		"HERDWATCH_WORKER_COUNT",
		"HERDWATCH_EVALUATION_INTERVAL",
		"HERDWATCH_ACTIVE_FENCE",
		"HERDWATCH_SMTP_HOST",
		"HERDWATCH_ALERT_RECIPIENTS",
		"HERDWATCH_KAFKA_BROKERS",
		"HERDWATCH_KAFKA_ALERTS_TOPIC",
		"HERDWATCH_STORE",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "herdwatch-*.yaml")
	if err != nil {
		t.Fatalf("create temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	_ = f.Close()
	return f.Name()
}
