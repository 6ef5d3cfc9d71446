package axisdb

import (
	"errors"
	"fmt"

	"github.com/axisdb/axisdb/dimlabel"
	"github.com/axisdb/axisdb/query"
	"github.com/axisdb/axisdb/ranges"
)

var (
	// ErrInvalidArgument is returned for malformed query arguments:
	// multiple label ranges where one is allowed, mismatched buffers, or a
	// partial ordered write.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfDomain is returned when a range is not contained in the
	// declared domain.
	ErrOutOfDomain = errors.New("range out of domain")

	// ErrUnsupportedDatatype is returned when a label or index datatype is
	// outside the supported set.
	ErrUnsupportedDatatype = errors.New("unsupported datatype")

	// ErrUnsupportedOrder is returned when an operation requires an
	// increasing or decreasing label order.
	ErrUnsupportedOrder = errors.New("unsupported label order")

	// ErrSingleFragmentLabel is returned when an ordered label is written
	// more than once.
	ErrSingleFragmentLabel = errors.New("ordered label already written")

	// ErrMissingIndexBuffer is returned when an unordered label operation
	// lacks the dimension data buffer.
	ErrMissingIndexBuffer = errors.New("missing index buffer")

	// ErrLabelRangeNotFound is returned when a bounded probe of a label
	// range finds no stored label at or above its bound.
	ErrLabelRangeNotFound = errors.New("label range not found")

	// ErrLabelSchemaMismatch is returned when a stored label disagrees
	// with its declaration on the parent schema.
	ErrLabelSchemaMismatch = errors.New("label schema mismatch")

	// ErrUnsupportedQueryType is returned when labels are combined with a
	// query type that does not support them.
	ErrUnsupportedQueryType = errors.New("query type not supported for labels")
)

// translateError normalizes child-package errors into the public contract.
// The original underlying error remains reachable via errors.Is and errors.As.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ranges.ErrOutOfDomain):
		return fmt.Errorf("%w: %w", ErrOutOfDomain, err)
	case errors.Is(err, dimlabel.ErrInvalidArgument),
		errors.Is(err, query.ErrInvalidBuffer),
		errors.Is(err, query.ErrVarLengthUnsupported),
		errors.Is(err, query.ErrNotFullDomain):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, dimlabel.ErrUnsupportedDatatype):
		return fmt.Errorf("%w: %w", ErrUnsupportedDatatype, err)
	case errors.Is(err, dimlabel.ErrUnsupportedOrder):
		return fmt.Errorf("%w: %w", ErrUnsupportedOrder, err)
	case errors.Is(err, dimlabel.ErrSingleFragmentLabel):
		return fmt.Errorf("%w: %w", ErrSingleFragmentLabel, err)
	case errors.Is(err, dimlabel.ErrMissingIndexBuffer):
		return fmt.Errorf("%w: %w", ErrMissingIndexBuffer, err)
	case errors.Is(err, dimlabel.ErrLabelRangeNotFound):
		return fmt.Errorf("%w: %w", ErrLabelRangeNotFound, err)
	case errors.Is(err, dimlabel.ErrLabelSchemaMismatch):
		return fmt.Errorf("%w: %w", ErrLabelSchemaMismatch, err)
	case errors.Is(err, dimlabel.ErrUnsupportedForQueryType),
		errors.Is(err, dimlabel.ErrUnknownQueryType):
		return fmt.Errorf("%w: %w", ErrUnsupportedQueryType, err)
	}
	return err
}
