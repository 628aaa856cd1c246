package contract

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrContractViolation = errors.New("generated text violates response contract")
	ErrFlowConfig        = errors.New("flow configuration invalid")
	ErrGeneratorInvoke   = errors.New("text generator invoke failed")
)
