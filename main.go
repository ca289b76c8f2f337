package main

import (
	"os"

	"gohan/variantstore/models"
	serviceInfo "gohan/variantstore/models/constants/service-info"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    string(serviceInfo.SERVICE_ARTIFACT),
		Usage:   string(serviceInfo.SERVICE_DESCRIPTION),
		Version: string(serviceInfo.SERVICE_VERSION),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "verbose logging",
				EnvVars: []string{"GOHAN_DEBUG"},
			},
		},
		Before: func(c *cli.Context) error {
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if c.Bool("debug") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			loadCommand(),
			studiesCommand(),
			cleanStageCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

// loadConfig gathers the environment variables
func loadConfig() (*models.Config, error) {
	var cfg models.Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"debug":             cfg.Debug,
		"vcfPath":           cfg.Api.VcfPath,
		"fileConcurrency":   cfg.Api.FileProcessingConcurrencyLevel,
		"store":             cfg.Store.Backend,
		"badgerPath":        cfg.Store.BadgerPath,
		"elasticsearchUrl":  cfg.Elasticsearch.Url,
		"elasticsearchUser": cfg.Elasticsearch.Username,
		"bulkIndexingCap":   cfg.Elasticsearch.BulkIndexingCap,
		"loadThreads":       cfg.Load.LoadThreads,
		"mergeMode":         cfg.Load.MergeMode,
		"sanitation":        cfg.Sanitation.Enabled,
	}).Debug("configuration")

	return &cfg, nil
}
