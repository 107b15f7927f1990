package domain

import "errors"

var (
	ErrNoLines             = errors.New("no_lines")
	ErrMissingAmount       = errors.New("missing_amount")
	ErrNegativeAmount      = errors.New("negative_amount")
	ErrInvalidTaxRate      = errors.New("invalid_tax_rate")
	ErrInvalidRoundingMode = errors.New("invalid_rounding_mode")
	ErrInvalidGSTIN        = errors.New("invalid_gstin")
)
