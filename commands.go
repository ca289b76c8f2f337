package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"gohan/variantstore/api"
	"gohan/variantstore/models"
	"gohan/variantstore/repositories"
	"gohan/variantstore/repositories/badger"
	"gohan/variantstore/repositories/elasticsearch"
	"gohan/variantstore/services"
	"gohan/variantstore/services/metrics"
	"gohan/variantstore/services/sanitation"
	"gohan/variantstore/services/storage"
	"gohan/variantstore/services/studies"
	"gohan/variantstore/utils"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 30 * time.Second

// deps holds the singletons every command works with
type deps struct {
	cfg     *models.Config
	store   repositories.Store
	studies *studies.Manager
	engine  *storage.StorageEngine
}

func openDeps(ctx context.Context, reg prometheus.Registerer) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	manager := studies.NewManager(store, logrus.StandardLogger())
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}
	return &deps{
		cfg:     cfg,
		store:   store,
		studies: manager,
		engine:  storage.NewStorageEngine(store, manager, logrus.StandardLogger(), m),
	}, nil
}

func (r *deps) Close() {
	if err := r.store.Close(); err != nil {
		logrus.WithError(err).Error("closing the store")
	}
}

// openStore connects the configured backend
func openStore(ctx context.Context, cfg *models.Config) (repositories.Store, error) {
	switch cfg.Store.Backend {
	case "", "badger":
		return badger.Open(cfg.Store.BadgerPath, cfg.Store.InMemory, logrus.StandardLogger())
	case "elasticsearch":
		es, err := utils.CreateEsConnection(cfg.Elasticsearch.Url, cfg.Elasticsearch.Username, cfg.Elasticsearch.Password, cfg.Debug)
		if err != nil {
			return nil, err
		}
		return elasticsearch.New(ctx, es, cfg, logrus.StandardLogger())
	default:
		return nil, errors.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the http api",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := openDeps(ctx, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			defer rt.Close()

			// Service Singletons
			iz := services.NewIngestionService(rt.engine, rt.cfg, logrus.StandardLogger())
			ss := sanitation.NewSanitationService(rt.store, rt.studies, rt.cfg, logrus.StandardLogger())
			defer ss.Stop()

			e := api.NewServer(rt.cfg, rt.engine, iz, prometheus.DefaultGatherer)

			// Run
			errs := make(chan error, 1)
			go func() {
				logrus.Infof("Running on Port : %s", rt.cfg.Api.Port)
				errs <- e.Start(":" + rt.cfg.Api.Port)
			}()

			select {
			case err := <-errs:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logrus.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				return err
			}
			iz.Wait()
			return nil
		},
	}
}

func loadCommand() *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "stage and merge variant files into a study",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "study",
				Usage:    "study name, created when missing",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:    "option",
				Aliases: []string{"o"},
				Usage:   fmt.Sprintf("load option as key=value, one of %s", strings.Join(models.OptionNames(), ", ")),
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("no file to load", 2)
			}
			overrides, err := parseOptions(c.StringSlice("option"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			rt, err := openDeps(c.Context, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			opts, err := rt.cfg.Load.WithOverrides(overrides)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			sc, err := rt.studies.CreateStudy(c.Context, c.String("study"))
			if err != nil {
				return err
			}

			paths := c.Args().Slice()
			results, err := rt.engine.LoadFiles(c.Context, sc.StudyId, paths, opts)
			for n, res := range results {
				fields := logrus.Fields{"study": sc.StudyName, "file": res.FileId}
				if res.Merge != nil {
					fields["merge"] = res.Merge.String()
				}
				if res.Stage != nil {
					fields["stage"] = res.Stage.String()
				}
				logrus.WithFields(fields).Infof("%s loaded", filepath.Base(paths[n]))
				for _, w := range res.Warnings {
					logrus.Warn(w)
				}
			}
			if err != nil {
				return errors.Wrapf(err, "loading %d files into %s", len(paths), sc.StudyName)
			}
			return nil
		},
	}
}

// parseOptions turns key=value pairs into an option map
func parseOptions(pairs []string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.Errorf("invalid option %q, expected key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

func studiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "studies",
		Usage: "list the studies",
		Action: func(c *cli.Context) error {
			rt, err := openDeps(c.Context, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			list, err := rt.studies.ListStudies(c.Context)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFILES\tINDEXED\tSAMPLES")
			for _, sc := range list {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\n", sc.StudyId, sc.StudyName, len(sc.FileIds), len(sc.IndexedFiles), len(sc.SampleIds))
			}
			return w.Flush()
		},
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "register a new study",
				ArgsUsage: "NAME",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("expected the study name", 2)
					}
					rt, err := openDeps(c.Context, nil)
					if err != nil {
						return err
					}
					defer rt.Close()

					sc, err := rt.studies.CreateStudy(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					fmt.Println(sc.StudyId)
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "print the configuration of a study",
				ArgsUsage: "NAME",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("expected the study name", 2)
					}
					rt, err := openDeps(c.Context, nil)
					if err != nil {
						return err
					}
					defer rt.Close()

					sc, err := rt.studies.GetStudyConfigurationByName(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					out, err := json.MarshalIndent(sc, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(out))
					return nil
				},
			},
		},
	}
}

func cleanStageCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean-stage",
		Usage: "drop the staged data of the files already indexed",
		Action: func(c *cli.Context) error {
			rt, err := openDeps(c.Context, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			// disabled: this runs once, not on a schedule
			cfg := *rt.cfg
			cfg.Sanitation.Enabled = false
			n, err := sanitation.NewSanitationService(rt.store, rt.studies, &cfg, logrus.StandardLogger()).CleanStage(c.Context)
			if err != nil {
				return err
			}
			logrus.Infof("%d stage documents cleaned", n)
			return nil
		},
	}
}
