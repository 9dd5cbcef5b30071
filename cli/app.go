// Package cli implements the pitchfork command line application.
package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/urfave/cli/v2"

	"github.com/domo-pitchfork/go-pitchfork/auth"
	"github.com/domo-pitchfork/go-pitchfork/config"
	"github.com/domo-pitchfork/go-pitchfork/source"
	"github.com/domo-pitchfork/go-pitchfork/streams"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Global flags.
var (
	verboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "Enable debug logging",
	}
	apiHostFlag = &cli.StringFlag{
		Name:  "api-host",
		Usage: "Domo API host (overrides DOMO_API_HOST)",
	}
	retriesFlag = &cli.IntFlag{
		Name:  "retries",
		Usage: "Retries of failed HTTP requests (overrides DOMO_HTTP_RETRIES)",
	}
)

// App builds pitchfork commands on top of an environment.
type App struct {
	env    env.Repository
	logger log.Logger
}

// NewApp returns the pitchfork CLI application. Configuration is read from
// the given environment, flags take precedence over it.
func NewApp(envRepository env.Repository, logger log.Logger) *cli.App {
	a := &App{
		env:    envRepository,
		logger: logger,
	}

	return &cli.App{
		Name:    "pitchfork",
		Usage:   "Upload data to Domo streams",
		Version: Version,
		Flags:   []cli.Flag{verboseFlag, apiHostFlag, retriesFlag},
		Commands: []*cli.Command{
			a.streamCommand(),
		},
	}
}

// session is what a command needs to talk to the API.
type session struct {
	config config.Config
	tokens *auth.ClientCredentials
	api    *streams.APIClient
	opener *source.Opener
}

func (a *App) newSession(c *cli.Context) (*session, error) {
	conf, err := config.Load(a.env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if c.Bool(verboseFlag.Name) {
		conf.Verbose = true
	}
	if c.IsSet(apiHostFlag.Name) {
		conf.APIHost = c.String(apiHostFlag.Name)
	}
	if c.IsSet(retriesFlag.Name) {
		conf.HTTPRetries = c.Int(retriesFlag.Name)
		if conf.HTTPRetries < 0 {
			return nil, fmt.Errorf("--retries must not be negative: %d", conf.HTTPRetries)
		}
	}

	a.logger.EnableDebugLog(conf.Verbose)
	if conf.Verbose {
		config.Print(conf, a.logger)
	}

	tokens, err := auth.NewClientCredentials(auth.ClientCredentialsParams{
		ClientID:     conf.ClientID,
		ClientSecret: string(conf.ClientSecret),
		Scopes:       conf.Scopes,
		TokenURL:     strings.TrimSuffix(conf.APIHost, "/") + "/oauth/token",
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}

	api, err := streams.NewAPIClient(streams.APIClientParams{
		BaseURL:    conf.APIHost,
		Tokens:     tokens,
		MaxRetries: conf.HTTPRetries,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}

	httpClient := retryhttp.NewClient(a.logger)
	httpClient.RetryMax = conf.HTTPRetries
	opener := source.NewOpener(httpClient.StandardClient(), source.S3Params{
		Region:          conf.AWS.Region,
		AccessKeyID:     conf.AWS.AccessKeyID,
		SecretAccessKey: string(conf.AWS.SecretAccessKey),
		NumFullRetries:  conf.HTTPRetries,
	}, a.logger)

	return &session{
		config: conf,
		tokens: tokens,
		api:    api,
		opener: opener,
	}, nil
}

func printJSON(c *cli.Context, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(c.App.Writer, string(data))
	return err
}
