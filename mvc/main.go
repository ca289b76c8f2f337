package mvc

import (
	"gohan/variantstore/contexts"
	"gohan/variantstore/models/dtos/errors"
	"gohan/variantstore/repositories"
	"gohan/variantstore/services/storage"

	"github.com/labstack/echo"
)

// RetrieveCommonElements gathers what the middleware resolved into a variant query
func RetrieveCommonElements(c echo.Context) (*storage.StorageEngine, repositories.VariantQuery) {
	gc := c.(*contexts.GohanContext)

	return gc.Engine, repositories.VariantQuery{
		StudyId:    gc.StudyId,
		FileIds:    gc.FileIds,
		Chromosome: gc.Chromosome,
		Start:      gc.LowerBound,
		End:        gc.UpperBound,
	}
}

// RespondError writes the error response matching the kind of err
func RespondError(c echo.Context, err error) error {
	resp := errors.FromError(err)
	return c.JSON(resp.Code, resp)
}
