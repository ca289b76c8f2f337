package badger

import (
	"fmt"

	"gohan/variantstore/codecs/variant"
)

const (
	studyPrefix     = "study:"
	studyNamePrefix = "studyname:"
	stagePrefix     = "stage:"
	variantPrefix   = "var:"

	// longest end - start of the documents of a chromosome
	variantSpanPrefix = "varspan:"
)

func makeStudyKey(studyId int) []byte {
	return []byte(fmt.Sprintf("%s%010d", studyPrefix, studyId))
}

func makeStudyNameKey(name string) []byte {
	return []byte(studyNamePrefix + name)
}

func makeStagePrefix(studyId int) []byte {
	return []byte(fmt.Sprintf("%s%010d:", stagePrefix, studyId))
}

func makeStageKey(studyId int, id string) []byte {
	return append(makeStagePrefix(studyId), id...)
}

func makeStageChromosomePrefix(studyId int, chromosome string) []byte {
	return append(makeStagePrefix(studyId), variant.ChromosomePrefix(chromosome)...)
}

func makeVariantKey(id string) []byte {
	return []byte(variantPrefix + id)
}

func makeVariantChromosomePrefix(chromosome string) []byte {
	return []byte(variantPrefix + variant.ChromosomePrefix(chromosome))
}

func makeVariantPositionKey(chromosome string, start int) []byte {
	return []byte(variantPrefix + variant.PositionPrefix(chromosome, start))
}

func makeVariantSpanKey(chromosome string) []byte {
	return []byte(variantSpanPrefix + chromosome)
}
