package structs

import (
	"gohan/variantstore/models/indexes"
)

// StageQueueStructure carries one encoded record to the stage, Document
// holds the variant coordinates used when the stage document is created
type StageQueueStructure struct {
	Document *indexes.StageDocument
	Record   []byte
}
