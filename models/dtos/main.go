package dtos

import (
	"time"
)

type VariantReponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}
type VariantCountReponse struct {
	VariantReponse
	Count int64 `json:"count"`
}

// -- Studies

type StudiesResponseDTO struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Results []StudySummaryDTO `json:"results"`
}

type StudySummaryDTO struct {
	StudyId      int    `json:"studyId"`
	StudyName    string `json:"studyName"`
	Files        int    `json:"files"`
	IndexedFiles []int  `json:"indexedFiles"`
	Samples      int    `json:"samples"`
}

// ----

type GeneralErrorResponseDto struct {
	Code      int            `json:"code"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Errors    []GeneralError `json:"errors"`
}

type GeneralError struct {
	Message string `json:"message"`
}
