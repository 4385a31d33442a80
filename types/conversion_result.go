package types

// Frame type discriminants emitted by the converter process.
const (
	ConversionResultType = "conversion_result"
	ProgressType         = "progress"
)

// ConversionStatus is the status reported in a conversion result frame.
type ConversionStatus string

const (
	// ConversionCompleted indicates every table was transferred.
	ConversionCompleted ConversionStatus = "completed"
	// ConversionPartial indicates the transfer finished but skipped data.
	ConversionPartial ConversionStatus = "partial"
	// ConversionError indicates the transfer failed.
	ConversionError ConversionStatus = "error"
)

// Converter error types carried in error results.
const (
	ErrorTypeModule      = "module"
	ErrorTypeUnknownType = "unknown_type"
	ErrorTypeInvalidData = "invalid_data"
)

// ConversionResultOutcome is the payload of a conversion result frame.
type ConversionResultOutcome struct {
	Status    ConversionStatus `msgpack:"status" json:"status"`
	Message   *string          `msgpack:"message,omitempty" json:"message,omitempty"`
	ErrorType *string          `msgpack:"error_type,omitempty" json:"error_type,omitempty"`
	// Causes is the converter-side causal chain, outermost first.
	Causes []string `msgpack:"causes,omitempty" json:"causes,omitempty"`
}

// ConversionResultFrame is the terminal control frame written by the
// converter. Discriminated by Type == "conversion_result".
type ConversionResultFrame struct {
	Type    string                  `msgpack:"type"`
	Outcome ConversionResultOutcome `msgpack:"outcome"`
}

// ProgressFrame reports transfer progress for a conversion stage.
type ProgressFrame struct {
	Type  string `msgpack:"type"`
	Stage string `msgpack:"stage"`
	Done  int64  `msgpack:"done"`
	Total int64  `msgpack:"total"`
}
