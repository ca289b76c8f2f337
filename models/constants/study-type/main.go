package studyType

import (
	"strings"

	"gohan/variantstore/models/constants"
)

const (
	Unknown     constants.StudyType = ""
	CaseControl constants.StudyType = "CASE_CONTROL"
	CaseSet     constants.StudyType = "CASE_SET"
	Control     constants.StudyType = "CONTROL_SET"
	Collection  constants.StudyType = "COLLECTION"
	Family      constants.StudyType = "FAMILY"
	Trio        constants.StudyType = "TRIO"
	Paired      constants.StudyType = "PAIRED"
	Aggregate   constants.StudyType = "AGGREGATE"
)

func CastToStudyType(text string) constants.StudyType {
	return constants.StudyType(strings.ToUpper(strings.TrimSpace(text)))
}

// CompressGenotypes is false for study designs where every genotype matters,
// and therefore the unknown genotype has to be the implicit one.
func CompressGenotypes(st constants.StudyType) bool {
	switch st {
	case Family, Trio, Paired:
		return false
	default:
		return true
	}
}
