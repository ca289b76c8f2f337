package common

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"runtime"
	"testing"

	"gohan/variantstore/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"
)

const (
	StudiesPath           string = "%s/studies"
	StudyPath             string = "%s/studies/%s"
	StudyLoadPath         string = "%s/studies/%s/load%s"
	IngestionRequestsPath string = "%s/ingestion/requests"
	VariantsCountPath     string = "%s/variants/count%s"
)

// InitConfig reads test.config.yml next to this file, on top of the load defaults
func InitConfig() *models.Config {
	var cfg models.Config
	cfg.Load = models.DefaultLoadOptions()

	// get this file's path
	_, filename, _, _ := runtime.Caller(0)
	folderpath := path.Dir(filename)

	// retrieve common's test.config
	f, err := os.Open(fmt.Sprintf("%s/test.config.yml", folderpath))
	if err != nil {
		processError(err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	err = decoder.Decode(&cfg)
	if err != nil {
		processError(err)
	}

	if cfg.Debug {
		http.DefaultTransport.(*http.Transport).TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &cfg
}

func processError(err error) {
	fmt.Println(err)
	os.Exit(2)
}

// MakeJsonCall runs the request, checks the status code and decodes the body into out
func MakeJsonCall(_t *testing.T, method string, url string, shouldBe int, out interface{}) {
	request, _ := http.NewRequest(method, url, nil)

	client := &http.Client{}
	response, responseErr := client.Do(request)
	require.Nil(_t, responseErr)

	defer response.Body.Close()

	assert.Equal(_t, shouldBe, response.StatusCode, fmt.Sprintf("Error -- Api %s %s Status: %s ; Should be %d", method, url, response.Status, shouldBe))

	respBody, respBodyErr := io.ReadAll(response.Body)
	require.Nil(_t, respBodyErr)

	if out != nil {
		jsonUnmarshallingError := json.Unmarshal(respBody, out)
		assert.Nil(_t, jsonUnmarshallingError, string(respBody))
	}
}
