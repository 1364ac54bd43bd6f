package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/aggregator/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.ConsumerPollMS, convey.ShouldEqual, 1000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("AGGREGATOR_ADDR", ":9090")
			_ = os.Setenv("AGGREGATOR_STORE_DRIVER", "redis")
			_ = os.Setenv("AGGREGATOR_REDIS_ADDR", "cache:6379")
			_ = os.Setenv("AGGREGATOR_REDIS_DB", "2")
			_ = os.Setenv("AGGREGATOR_REDIS_PASSWORD", "s3cret")
			_ = os.Setenv("AGGREGATOR_REDIS_PREFIX", "agg-test")
			_ = os.Setenv("AGGREGATOR_BLOOM_CAPACITY", "50000")
			_ = os.Setenv("AGGREGATOR_BLOOM_FP_RATE", "0.001")
			_ = os.Setenv("AGGREGATOR_CONSUMER_POLL_MS", "250")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "redis")
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "cache:6379")
				convey.So(cfg.RedisDB, convey.ShouldEqual, 2)
				convey.So(cfg.RedisPassword, convey.ShouldEqual, "s3cret")
				convey.So(cfg.RedisPrefix, convey.ShouldEqual, "agg-test")
				convey.So(cfg.BloomCapacity, convey.ShouldEqual, 50000)
				convey.So(cfg.BloomFPRate, convey.ShouldAlmostEqual, 0.001)
				convey.So(cfg.ConsumerPollMS, convey.ShouldEqual, 250)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":7070"
store_driver: memory
consumer_max_retries: 5
kafka_brokers: "k1:9092,k2:9092"
kafka_topic: ingest
elastic_url: "http://localhost:9200"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("AGGREGATOR_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
				convey.So(cfg.ConsumerMaxRetries, convey.ShouldEqual, 5)
				convey.So(cfg.Brokers(), convey.ShouldResemble, []string{"k1:9092", "k2:9092"})
				convey.So(cfg.KafkaTopic, convey.ShouldEqual, "ingest")
				convey.So(cfg.ElasticURL, convey.ShouldEqual, "http://localhost:9200")
				convey.So(cfg.ElasticIndex, convey.ShouldEqual, "events")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":7070"
store_driver: memory
consumer_poll_ms: 500
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("AGGREGATOR_CONFIG", tmpFile)
			_ = os.Setenv("AGGREGATOR_ADDR", ":6060")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
				convey.So(cfg.ConsumerPollMS, convey.ShouldEqual, 500)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("AGGREGATOR_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("AGGREGATOR_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("AGGREGATOR_CONSUMER_POLL_MS", "soon")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the loaded values fail validation", func() {
			_ = os.Setenv("AGGREGATOR_STORE_DRIVER", "postgres")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with YAML file containing comments", func() {
			yamlContent := `
# This is a comment
addr: ":9090"  # Inline comment
store_driver: redis
# Another comment
redis_db: 4
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("AGGREGATOR_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should parse YAML with comments", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.RedisDB, convey.ShouldEqual, 4)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"AGGREGATOR_CONFIG",
		"AGGREGATOR_ADDR",
		"AGGREGATOR_STORE_DRIVER",
		"AGGREGATOR_REDIS_ADDR",
		"AGGREGATOR_REDIS_DB",
		"AGGREGATOR_REDIS_PASSWORD",
		"AGGREGATOR_REDIS_PREFIX",
		"AGGREGATOR_BLOOM_CAPACITY",
		"AGGREGATOR_BLOOM_FP_RATE",
		"AGGREGATOR_CONSUMER_POLL_MS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "aggregator-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
