package models

import "time"

type Config struct {
	Debug bool `envconfig:"GOHAN_DEBUG" yaml:"debug"`

	Api struct {
		Url                            string `yaml:"url"`
		Port                           string `envconfig:"GOHAN_API_INTERNAL_PORT" default:"5000" yaml:"port"`
		VcfPath                        string `envconfig:"GOHAN_API_VCF_PATH" yaml:"vcfPath"`
		FileProcessingConcurrencyLevel int    `envconfig:"GOHAN_API_FILE_PROC_CONC_LVL" default:"1" yaml:"fileProcessingConcurrencyLevel"`
	} `yaml:"api"`

	Store struct {
		// "badger" (embedded) or "elasticsearch"
		Backend    string `envconfig:"GOHAN_STORE_BACKEND" default:"badger" yaml:"backend"`
		BadgerPath string `envconfig:"GOHAN_BADGER_PATH" default:"/tmp/gohan-variantstore" yaml:"badgerPath"`
		InMemory   bool   `envconfig:"GOHAN_BADGER_IN_MEMORY" yaml:"inMemory"`
	} `yaml:"store"`

	Elasticsearch struct {
		Url         string `envconfig:"GOHAN_ES_URL" yaml:"url"`
		Username    string `envconfig:"GOHAN_ES_USERNAME" yaml:"username"`
		Password    string `envconfig:"GOHAN_ES_PASSWORD" yaml:"password"`
		IndexPrefix string `envconfig:"GOHAN_ES_INDEX_PREFIX" default:"gohan" yaml:"indexPrefix"`
		// documents per bulk request flush
		BulkIndexingCap int `envconfig:"GOHAN_API_BULK_INDEXING_CAP" default:"10000" yaml:"bulkIndexingCap"`
	} `yaml:"elasticsearch"`

	Load LoadOptions `yaml:"load"`

	Sanitation struct {
		Enabled  bool          `envconfig:"GOHAN_SANITATION_ENABLED" default:"true" yaml:"enabled"`
		Interval time.Duration `envconfig:"GOHAN_SANITATION_INTERVAL" default:"24h" yaml:"interval"`
	} `yaml:"sanitation"`
}
