package models

import (
	"reflect"
	"time"

	"gohan/variantstore/models/constants"
	mm "gohan/variantstore/models/constants/merge-mode"
	st "gohan/variantstore/models/constants/study-type"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// LoadOptions drive a single load. Defaults come from the environment,
// per request overrides are decoded from an option map keyed by the
// mapstructure names.
type LoadOptions struct {
	Stage               bool          `envconfig:"GOHAN_LOAD_STAGE" default:"true" mapstructure:"stage" yaml:"stage"`
	Merge               bool          `envconfig:"GOHAN_LOAD_MERGE" default:"true" mapstructure:"merge" yaml:"merge"`
	StageResume         bool          `envconfig:"GOHAN_LOAD_STAGE_RESUME" mapstructure:"stage.resume" yaml:"stageResume"`
	MergeResume         bool          `envconfig:"GOHAN_LOAD_MERGE_RESUME" mapstructure:"merge.resume" yaml:"mergeResume"`
	MergeBatchSize      int           `envconfig:"GOHAN_LOAD_MERGE_BATCH_SIZE" default:"10" mapstructure:"merge.batch.size" yaml:"mergeBatchSize"`
	LoadThreads         int           `envconfig:"GOHAN_LOAD_THREADS" default:"4" mapstructure:"load.threads" yaml:"loadThreads"`
	LoadBatchSize       int           `envconfig:"GOHAN_LOAD_BATCH_SIZE" default:"100" mapstructure:"load.batch.size" yaml:"loadBatchSize"`
	DefaultGenotype     string        `envconfig:"GOHAN_LOAD_DEFAULT_GENOTYPE" mapstructure:"default.genotype" yaml:"defaultGenotype"`
	MergeMode           string        `envconfig:"GOHAN_LOAD_MERGE_MODE" default:"BASIC" mapstructure:"merge.mode" yaml:"mergeMode"`
	StageCleanWhileLoad bool          `envconfig:"GOHAN_LOAD_STAGE_CLEAN_WHILE_LOAD" mapstructure:"stage.clean.while.load" yaml:"stageCleanWhileLoad"`
	StageParallelWrite  bool          `envconfig:"GOHAN_LOAD_STAGE_PARALLEL_WRITE" mapstructure:"stage.parallel.write" yaml:"stageParallelWrite"`
	MergeParallelWrite  bool          `envconfig:"GOHAN_LOAD_MERGE_PARALLEL_WRITE" mapstructure:"merge.parallel.write" yaml:"mergeParallelWrite"`
	IncludeSrc          bool          `envconfig:"GOHAN_LOAD_INCLUDE_SRC" mapstructure:"include.src" yaml:"includeSrc"`
	PostLoadCheckSkip   bool          `envconfig:"GOHAN_LOAD_POST_LOAD_CHECK_SKIP" mapstructure:"post.load.check.skip" yaml:"postLoadCheckSkip"`
	StudyType           string        `envconfig:"GOHAN_LOAD_STUDY_TYPE" mapstructure:"study.type" yaml:"studyType"`
	QueuePutTimeout     time.Duration `envconfig:"GOHAN_LOAD_QUEUE_PUT_TIMEOUT" default:"20m" mapstructure:"queue.put.timeout" yaml:"queuePutTimeout"`
}

func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Stage:           true,
		Merge:           true,
		MergeBatchSize:  10,
		LoadThreads:     4,
		LoadBatchSize:   100,
		MergeMode:       string(mm.BASIC),
		QueuePutTimeout: 20 * time.Minute,
	}
}

// WithOverrides returns a copy of o with the values found in the option map
func (o LoadOptions) WithOverrides(overrides map[string]interface{}) (LoadOptions, error) {
	out := o
	if len(overrides) == 0 {
		return out, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           &out,
	})
	if err != nil {
		return o, err
	}
	if err := decoder.Decode(overrides); err != nil {
		return o, errors.Wrap(err, "invalid load options")
	}
	return out, nil
}

func (o LoadOptions) GetMergeMode() constants.MergeMode {
	mode, err := mm.CastToMergeMode(o.MergeMode)
	if err != nil {
		return mm.BASIC
	}
	return mode
}

func (o LoadOptions) Threads() int {
	if o.LoadThreads < 1 {
		return 1
	}
	return o.LoadThreads
}

func (o LoadOptions) BatchSize() int {
	if o.LoadBatchSize < 1 {
		return 1
	}
	return o.LoadBatchSize
}

func (o LoadOptions) GetStudyType() constants.StudyType {
	return st.CastToStudyType(o.StudyType)
}

// OptionNames lists the recognized keys of an option map
func OptionNames() []string {
	t := reflect.TypeOf(LoadOptions{})
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name := t.Field(i).Tag.Get("mapstructure"); name != "" {
			names = append(names, name)
		}
	}
	return names
}
