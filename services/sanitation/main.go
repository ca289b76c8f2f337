package sanitation

import (
	"context"
	"time"

	"gohan/variantstore/models"
	bs "gohan/variantstore/models/constants/batch-status"
	op "gohan/variantstore/models/constants/operation"
	"gohan/variantstore/repositories"
	"gohan/variantstore/services/studies"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

type (
	// SanitationService periodically drops the staged data that loads left
	// behind for files already indexed
	SanitationService struct {
		Initialized bool
		Config      *models.Config

		store     repositories.Store
		studies   *studies.Manager
		logger    logrus.FieldLogger
		scheduler *gocron.Scheduler
	}
)

func NewSanitationService(store repositories.Store, manager *studies.Manager, cfg *models.Config, logger logrus.FieldLogger) *SanitationService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ss := &SanitationService{
		Initialized: false,
		Config:      cfg,
		store:       store,
		studies:     manager,
		logger:      logger.WithField("component", "sanitation"),
	}

	ss.Init()

	return ss
}

func (ss *SanitationService) Init() {
	// initialization if necessary
	if !ss.Initialized && ss.Config.Sanitation.Enabled {
		interval := ss.Config.Sanitation.Interval
		if interval <= 0 {
			interval = 24 * time.Hour
		}
		ss.scheduler = gocron.NewScheduler(time.UTC)
		_, err := ss.scheduler.Every(interval).WaitForSchedule().Do(func() {
			ss.logger.Info("running stage cleanup")
			if _, err := ss.CleanStage(context.Background()); err != nil {
				ss.logger.WithError(err).Error("stage cleanup failed")
			}
		})
		if err != nil {
			ss.logger.WithError(err).Error("unable to schedule the stage cleanup")
			return
		}
		ss.scheduler.StartAsync()

		ss.Initialized = true
		ss.logger.Info("sanitation service initialized")
	}
}

func (ss *SanitationService) Stop() {
	if ss.scheduler != nil {
		ss.scheduler.Stop()
	}
}

// CleanStage removes, for every study, the staged data of the files that
// are indexed and whose merge is READY. Returns the stage documents touched.
func (ss *SanitationService) CleanStage(ctx context.Context) (int64, error) {
	list, err := ss.studies.ListStudies(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, sc := range list {
		files := cleanable(sc)
		if len(files) == 0 {
			continue
		}
		n, err := ss.store.CleanStage(ctx, sc.StudyId, files, nil)
		if err != nil {
			return total, err
		}
		if n > 0 {
			ss.logger.WithFields(logrus.Fields{"study": sc.StudyId, "files": files}).
				Infof("%d stage documents cleaned", n)
		}
		total += n
	}
	return total, nil
}

// cleanable lists the indexed files with a READY merge
func cleanable(sc *models.StudyConfiguration) []int {
	var out []int
	for _, f := range sc.IndexedFiles {
		for i := len(sc.Batches) - 1; i >= 0; i-- {
			b := sc.Batches[i]
			if b.Operation == op.MERGE && b.Touches([]int{f}) {
				if b.CurrentStatus() == bs.READY {
					out = append(out, f)
				}
				break
			}
		}
	}
	return out
}
