package wire

import (
	"fmt"

	"github.com/bnema/imsim/internal/domain"
)

var (
	ErrFrameTooShort        = fmt.Errorf("%w: frame shorter than header", domain.ErrDecode)
	ErrTruncatedVarint      = fmt.Errorf("%w: truncated varint", domain.ErrDecode)
	ErrTruncatedField       = fmt.Errorf("%w: truncated field", domain.ErrDecode)
	ErrUnsupportedWireType  = fmt.Errorf("%w: unsupported wire type", domain.ErrDecode)
	ErrInvalidFieldNumber   = fmt.Errorf("%w: invalid field number", domain.ErrDecode)
	ErrVarintOverflow       = fmt.Errorf("%w: varint overflow", domain.ErrDecode)
	ErrUnsupportedFieldType = fmt.Errorf("unsupported field type")
)
