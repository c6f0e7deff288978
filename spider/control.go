package spider

// ControlKind tags the variant of a middleware Control return, the tagged-
// union realization of the design note "Exception control flow": the
// source's IgnoreRequest/RetryRequest/DropItem/CloseSpider exceptions become
// control values instead of errors.
type ControlKind int

const (
	ControlContinue ControlKind = iota
	ControlReplaceRequest
	ControlReplaceResponse
	ControlIgnore
	ControlRetry
	ControlDrop
	ControlClose
)

// Control is returned by middleware hooks in place of the source's
// raise/return protocol.
type Control struct {
	Kind     ControlKind
	Request  *Request
	Response *Response
	Reason   string
}

// Continue signals "no opinion, proceed normally".
func Continue() Control { return Control{Kind: ControlContinue} }

// ReplaceRequest signals "dispatch this Request instead".
func ReplaceRequest(r *Request) Control { return Control{Kind: ControlReplaceRequest, Request: r} }

// ReplaceResponse signals "use this Response instead, short-circuiting the
// fetch".
func ReplaceResponse(r *Response) Control { return Control{Kind: ControlReplaceResponse, Response: r} }

// Ignore signals "drop this request/response silently". Statistics keeps no
// separate count of ignored requests.
func Ignore() Control { return Control{Kind: ControlIgnore} }

// Retry signals "force a retry pass" from exception middleware.
func Retry() Control { return Control{Kind: ControlRetry} }

// Drop signals "discard this item" from a pipeline.
func Drop(reason string) Control { return Control{Kind: ControlDrop, Reason: reason} }

// Close signals "stop admitting new work for this spider".
func Close(reason string) Control { return Control{Kind: ControlClose, Reason: reason} }
