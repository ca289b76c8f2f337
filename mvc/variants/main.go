package variants

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"gohan/variantstore/contexts"
	"gohan/variantstore/models"
	"gohan/variantstore/models/dtos"
	"gohan/variantstore/models/dtos/errors"
	"gohan/variantstore/models/ingest"
	"gohan/variantstore/mvc"
	variantService "gohan/variantstore/services/variants"
	"gohan/variantstore/utils"

	"github.com/labstack/echo"
	"github.com/sirupsen/logrus"
)

func VariantsCount(c echo.Context) error {
	logrus.Debugf("[%s] - VariantsCount hit!", time.Now())
	engine, q := mvc.RetrieveCommonElements(c)

	count, err := engine.CountVariants(c.Request().Context(), q)
	if err != nil {
		return mvc.RespondError(c, err)
	}

	return c.JSON(http.StatusOK, dtos.VariantCountReponse{
		VariantReponse: dtos.VariantReponse{
			Status:  http.StatusOK,
			Message: "Success",
		},
		Count: count,
	})
}

func GetVariantsOverview(c echo.Context) error {
	logrus.Debugf("[%s] - GetVariantsOverview hit!", time.Now())
	gc := c.(*contexts.GohanContext)

	overview, err := variantService.GetVariantsOverview(c.Request().Context(), gc.Engine, gc.StudyId)
	if err != nil {
		return mvc.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, overview)
}

// VariantsIngest queues the load of the comma separated `file` names,
// relative to the vcf directory, as one batch. Every other query parameter
// is a load option.
func VariantsIngest(c echo.Context) error {
	logrus.Debugf("[%s] - VariantsIngest hit!", time.Now())
	gc := c.(*contexts.GohanContext)
	vcfPath := gc.Config.Api.VcfPath

	fileNames := strings.Split(c.QueryParam("file"), ",")
	for _, fileName := range fileNames {
		if fileName == "" {
			return c.JSON(http.StatusBadRequest, errors.CreateSimpleBadRequest("Missing 'file' query parameter!"))
		}
	}

	options := map[string]interface{}{}
	knownOptions := models.OptionNames()
	for name, values := range c.QueryParams() {
		if name == "file" {
			continue
		}
		if !utils.StringInSlice(name, knownOptions) {
			return c.JSON(http.StatusBadRequest, errors.CreateSimpleBadRequest(fmt.Sprintf("unknown load option %s", name)))
		}
		options[name] = values[0]
	}

	paths := make([]string, len(fileNames))
	for n, fileName := range fileNames {
		// stay inside the vcf directory
		paths[n] = filepath.Join(vcfPath, filepath.Clean("/"+fileName))
	}

	requests, err := gc.IngestionService.SubmitBatch(gc.StudyId, paths, options)
	if err != nil {
		return mvc.RespondError(c, err)
	}
	responses := make([]ingest.LoadResponseDTO, 0, len(requests))
	for _, request := range requests {
		responses = append(responses, ingest.LoadResponseDTO{
			Id:       request.Id,
			Filename: request.Filename,
			State:    request.State,
			Message:  "Successfully queued",
		})
	}

	return c.JSON(http.StatusAccepted, responses)
}

func GetAllVariantIngestionRequests(c echo.Context) error {
	logrus.Debugf("[%s] - GetAllVariantIngestionRequests hit!", time.Now())
	return c.JSON(http.StatusOK, c.(*contexts.GohanContext).IngestionService.GetRequests())
}
