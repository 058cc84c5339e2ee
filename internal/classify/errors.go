package classify

import "errors"

var (
	ErrModelNotReady    = errors.New("classification model not ready")
	ErrModelUnreachable = errors.New("classification model unreachable")
	ErrInference        = errors.New("classification inference failed")
)
