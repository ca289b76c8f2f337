package contexts

import (
	"gohan/variantstore/models"
	"gohan/variantstore/services"
	"gohan/variantstore/services/storage"

	"github.com/labstack/echo"
)

type (
	// "Helper" Context to pass into routes that need
	//  the storage engine and other variables
	GohanContext struct {
		echo.Context
		Config           *models.Config
		Engine           *storage.StorageEngine
		IngestionService *services.IngestionService

		// set by the middleware
		StudyId    int
		FileIds    []int
		Chromosome string
		LowerBound int
		UpperBound int
	}
)
