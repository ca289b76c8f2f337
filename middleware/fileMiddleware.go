package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"gohan/variantstore/contexts"
	"gohan/variantstore/models/dtos/errors"

	"github.com/labstack/echo"
)

/*
Echo middleware to resolve an optionally provided comma separated `file`
HTTP query parameter into file ids of the study. Files are given by name or
id; a leading '-' selects the overlap contributions of the file instead.

Must run after the study was resolved.
*/
func ValidateOptionalFileAttribute(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		gc := c.(*contexts.GohanContext)

		fileQP := c.QueryParam("file")
		if len(fileQP) == 0 {
			return next(gc)
		}

		sc, err := gc.Engine.Studies().GetStudyConfiguration(c.Request().Context(), gc.StudyId)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errors.CreateSimpleInternalServerError(err.Error()))
		}

		for _, file := range strings.Split(fileQP, ",") {
			sign := 1
			if strings.HasPrefix(file, "-") {
				sign, file = -1, file[1:]
			}

			fileId, known := sc.FileIds[file]
			if id, convErr := strconv.Atoi(file); convErr == nil {
				_, known = sc.FileMetadata[id]
				fileId = id
			}
			if !known {
				return c.JSON(http.StatusNotFound, errors.CreateSimpleNotFound(fmt.Sprintf("file %s not found in study %s", file, sc.StudyName)))
			}
			gc.FileIds = append(gc.FileIds, sign*fileId)
		}

		return next(gc)
	}
}
