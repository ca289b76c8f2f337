package batchStatus

import "gohan/variantstore/models/constants"

const (
	NONE    constants.BatchStatus = ""
	RUNNING constants.BatchStatus = "RUNNING"
	DONE    constants.BatchStatus = "DONE"
	ERROR   constants.BatchStatus = "ERROR"
	READY   constants.BatchStatus = "READY"
)

// CanTransition reports whether an operation in status `from` may move to `to`
func CanTransition(from, to constants.BatchStatus) bool {
	switch from {
	case NONE:
		return to == RUNNING
	case RUNNING:
		return to == RUNNING || to == DONE || to == ERROR
	case ERROR:
		return to == RUNNING || to == ERROR
	case DONE:
		return to == READY
	default:
		return false
	}
}
