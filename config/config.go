package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Defaults for unset variables.
const (
	DefaultAPIHost    = "https://api.domo.com"
	DefaultBufferSize = ByteSize(256 * 1024)
)

// Config holds the settings shared by the pitchfork commands.
type Config struct {
	ClientID     string   `env:"DOMO_CLIENT_ID,required"`
	ClientSecret Secret   `env:"DOMO_CLIENT_SECRET,required"`
	APIHost      string   `env:"DOMO_API_HOST"`
	Scopes       []string `env:"DOMO_SCOPES"`
	BufferSize   ByteSize `env:"DOMO_STREAM_BUFFER_SIZE"`
	HTTPRetries  int      `env:"DOMO_HTTP_RETRIES"`
	Verbose      bool     `env:"PITCHFORK_VERBOSE"`

	AWS AWSConfig
}

// AWSConfig is used for s3:// input locations. Empty credentials fall back to
// the default AWS credential chain.
type AWSConfig struct {
	Region          string `env:"AWS_REGION"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey Secret `env:"AWS_SECRET_ACCESS_KEY"`
}

// Load reads the configuration from the environment and applies defaults.
func Load(repository env.Repository) (Config, error) {
	var c Config
	if err := Parse(&c, repository); err != nil {
		return Config{}, err
	}
	if err := Parse(&c.AWS, repository); err != nil {
		return Config{}, err
	}

	if c.APIHost == "" {
		c.APIHost = DefaultAPIHost
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.HTTPRetries < 0 {
		return Config{}, fmt.Errorf("DOMO_HTTP_RETRIES must not be negative: %d", c.HTTPRetries)
	}

	return c, nil
}

// Print logs the env tagged fields of a config struct. Secrets are masked.
func Print(conf interface{}, logger log.Logger) {
	v := reflect.Indirect(reflect.ValueOf(conf))
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()

	logger.Infof("Configuration:")
	for i := 0; i < v.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("env")
		if !ok {
			continue
		}
		key, _ := parseTag(tag)
		logger.Printf("- %s: %s", key, valueString(v.Field(i)))
	}
}

func valueString(v reflect.Value) string {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Slice {
		items := make([]string, v.Len())
		for i := range items {
			items[i] = fmt.Sprintf("%v", v.Index(i).Interface())
		}
		return strings.Join(items, "|")
	}
	return fmt.Sprintf("%v", v.Interface())
}
