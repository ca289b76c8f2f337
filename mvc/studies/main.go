package studies

import (
	"net/http"
	"sort"

	"gohan/variantstore/contexts"
	"gohan/variantstore/models/dtos"
	"gohan/variantstore/mvc"

	"github.com/labstack/echo"
)

func GetStudies(c echo.Context) error {
	gc := c.(*contexts.GohanContext)

	list, err := gc.Engine.Studies().ListStudies(c.Request().Context())
	if err != nil {
		return mvc.RespondError(c, err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StudyId < list[j].StudyId })

	results := make([]dtos.StudySummaryDTO, 0, len(list))
	for _, sc := range list {
		results = append(results, dtos.StudySummaryDTO{
			StudyId:      sc.StudyId,
			StudyName:    sc.StudyName,
			Files:        len(sc.FileIds),
			IndexedFiles: sc.IndexedFiles,
			Samples:      len(sc.SampleIds),
		})
	}

	return c.JSON(http.StatusOK, dtos.StudiesResponseDTO{
		Status:  http.StatusOK,
		Message: "Success",
		Results: results,
	})
}

// GetStudy returns the whole configuration of the resolved study
func GetStudy(c echo.Context) error {
	gc := c.(*contexts.GohanContext)

	sc, err := gc.Engine.Studies().GetStudyConfiguration(c.Request().Context(), gc.StudyId)
	if err != nil {
		return mvc.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, sc)
}
