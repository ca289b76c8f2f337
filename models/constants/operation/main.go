package operation

import "gohan/variantstore/models/constants"

const (
	STAGE constants.OperationName = "STAGE"
	MERGE constants.OperationName = "MERGE"
)
