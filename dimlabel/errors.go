package dimlabel

import "errors"

var (
	// ErrInvalidArgument is returned for malformed construction arguments:
	// multiple label ranges where one is allowed, mismatched buffers, or an
	// ordered write whose subarray is not the full domain.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedDatatype is returned when a label or index datatype is
	// outside the supported set.
	ErrUnsupportedDatatype = errors.New("unsupported datatype")

	// ErrUnsupportedOrder is returned when a range query is asked for an
	// order other than increasing or decreasing, or when the unordered-label
	// read path is reached.
	ErrUnsupportedOrder = errors.New("unsupported label order")

	// ErrSingleFragmentLabel is returned when an ordered write targets a
	// label that already holds data. Ordered labels are write-once.
	ErrSingleFragmentLabel = errors.New("ordered dimension labels can only be written once")

	// ErrMissingIndexBuffer is returned when an unordered write or an
	// unordered-label read lacks the parent dimension's data buffer.
	ErrMissingIndexBuffer = errors.New("missing index buffer")

	// ErrLabelRangeNotFound is returned when either bounded probe produces
	// no matching cell.
	ErrLabelRangeNotFound = errors.New("failed to read index range from label")

	// ErrLabelSchemaMismatch is returned when an opened label disagrees with
	// the parent schema's label reference.
	ErrLabelSchemaMismatch = errors.New("dimension label does not match its declaration")

	// ErrUnsupportedForQueryType is returned when labels are combined with
	// DELETE, UPDATE, or MODIFY_EXCLUSIVE queries.
	ErrUnsupportedForQueryType = errors.New("query type not supported for dimension labels")

	// ErrUnknownQueryType is returned for any undeclared query type.
	ErrUnknownQueryType = errors.New("unknown query type")

	// ErrInternal flags a structural inconsistency: one child of a data
	// query initialized without the other, or a range query reporting
	// success with empty buffers.
	ErrInternal = errors.New("internal inconsistency")
)
