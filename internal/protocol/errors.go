package protocol

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes follow HTTP conventions so the channel layer can map them 1:1.
const (
	CodeMalformedRequest = 400 // request failed schema validation
	CodeNotFound         = 404 // unknown entity id or unresolved target name
	CodeInvalidParams    = 422 // structurally valid but semantically invalid
	CodeInternal         = 500 // invariant violation not attributable to the caller
)

var knownCodes = map[int]struct{}{
	CodeMalformedRequest: {},
	CodeNotFound:         {},
	CodeInvalidParams:    {},
	CodeInternal:         {},
}

func IsKnownCode(code int) bool {
	_, ok := knownCodes[code]
	return ok
}
