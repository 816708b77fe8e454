package cot

import (
	"github.com/Malowking/finrag/api/cot"
)

type ControllerV1 struct{}

func NewV1() cot.ICotV1 {
	return &ControllerV1{}
}
