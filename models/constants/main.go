package constants

/*
	Defines a set of base level
	constants and enums to be used
	throughout the variant store and its
	associated services.
*/
type MergeMode string
type BatchStatus string
type OperationName string
type VariantType string
type StudyType string

// Genotype strings with a special meaning for the store
const (
	UnknownGenotype   = "?/?"
	MissingGenotype   = "./."
	ReferenceGenotype = "0/0"
)
