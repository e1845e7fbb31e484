// Package rpc defines the binary request/response protocol spoken between
// the host and sandboxed plugin guests.
//
// Every message on the boundary is a tagged envelope: the runtime arm
// carries lifecycle control (Version, Init, Shutdown) and is understood by
// every guest regardless of kind; the plugin arm carries the kind-specific
// payload (parser or byte-source). The encoding is little-endian with
// length-prefixed variable fields and is validated structurally on decode.
// Discriminant byte values are stable within one protocol revision; any
// layout change bumps Revision.
package rpc

// Revision is the active wire protocol revision, reported by the Version
// runtime call.
const Revision uint32 = 1

// Envelope discriminants.
const (
	tagRuntime byte = 0
	tagPlugin  byte = 1
)

// RuntimeRequest is a lifecycle control request.
type RuntimeRequest uint8

const (
	RuntimeVersion RuntimeRequest = iota
	RuntimeInit
	RuntimeShutdown
)

// RuntimeResponseKind discriminates runtime-level replies.
type RuntimeResponseKind uint8

const (
	RuntimeRespVersion RuntimeResponseKind = iota
	RuntimeRespInit
	RuntimeRespShutdown
	RuntimeRespError
)

// RuntimeResponse is a lifecycle control reply. Revision is only
// meaningful for RuntimeRespVersion.
type RuntimeResponse struct {
	Kind     RuntimeResponseKind
	Revision uint32
}

// ParserRequest is the plugin arm of a request to a parser guest.
type ParserRequest interface{ isParserRequest() }

// ParserSetup configures a parser guest once before the first Parse.
type ParserSetup struct {
	WithStorageHeader bool
}

// ParserParse hands the guest a byte buffer to drain.
type ParserParse struct {
	Bytes []byte
}

func (ParserSetup) isParserRequest() {}
func (ParserParse) isParserRequest() {}

// ParserResponse is the plugin arm of a reply from a parser guest.
type ParserResponse interface{ isParserResponse() }

// ParserSetupDone acknowledges ParserSetup.
type ParserSetupDone struct{}

// ParserResults carries the batch of results for one Parse request, in
// input-stream order. A terminal result appears at most once and only as
// the last element.
type ParserResults struct {
	Results []ParserResult
}

func (ParserSetupDone) isParserResponse() {}
func (ParserResults) isParserResponse()   {}

// ParserResult is one entry of a parse batch.
type ParserResult interface{ isParserResult() }

// ParseOk is a successful parse. BytesRemaining counts the unconsumed
// bytes of the original request buffer after this result. A nil Message
// is a filtered message: a valid parse whose output is suppressed.
type ParseOk struct {
	BytesRemaining uint64
	Message        *string
}

// ParseIncomplete signals the guest needs more bytes to make progress.
type ParseIncomplete struct{}

// ParseEof signals the guest reached end of stream.
type ParseEof struct{}

// ParseErr is a recoverable parse failure.
type ParseErr struct {
	Msg string
}

func (ParseOk) isParserResult()         {}
func (ParseIncomplete) isParserResult() {}
func (ParseEof) isParserResult()        {}
func (ParseErr) isParserResult()        {}

// SourceRequest is the plugin arm of a request to a byte-source guest.
type SourceRequest interface{ isSourceRequest() }

// SourceSetup configures a byte-source guest once before the first Reload.
type SourceSetup struct {
	InputPath     string
	TotalCapacity uint64
	BufferMin     uint64
}

// SourceConsume discards the front Offset bytes of the guest's buffer.
type SourceConsume struct {
	Offset uint64
}

// SourceReload asks the guest to refill its buffer.
type SourceReload struct{}

func (SourceSetup) isSourceRequest()   {}
func (SourceConsume) isSourceRequest() {}
func (SourceReload) isSourceRequest()  {}

// SourceResponse is the plugin arm of a reply from a byte-source guest.
type SourceResponse interface{ isSourceResponse() }

// SourceSetupDone acknowledges SourceSetup.
type SourceSetupDone struct{}

// SourceConsumeDone acknowledges SourceConsume.
type SourceConsumeDone struct{}

// SourceReloadResult carries the outcome of a Reload.
type SourceReloadResult struct {
	Result ReloadResult
}

func (SourceSetupDone) isSourceResponse()    {}
func (SourceConsumeDone) isSourceResponse()  {}
func (SourceReloadResult) isSourceResponse() {}

// ReloadResult is the outcome of one Reload round trip.
type ReloadResult interface{ isReloadResult() }

// ReloadOk carries the refilled buffer snapshot and its accounting.
type ReloadOk struct {
	NewlyLoadedBytes uint64
	AvailableBytes   uint64
	SkippedBytes     uint64
	Bytes            []byte
}

// ReloadEof signals the source is drained.
type ReloadEof struct{}

// ReloadErr is an unrecoverable source failure.
type ReloadErr struct {
	Msg string
}

func (ReloadOk) isReloadResult()  {}
func (ReloadEof) isReloadResult() {}
func (ReloadErr) isReloadResult() {}

// ParserReply is a decoded response envelope on a parser channel. Exactly
// one of Runtime and Plugin is set.
type ParserReply struct {
	Runtime *RuntimeResponse
	Plugin  ParserResponse
}

// SourceReply is a decoded response envelope on a byte-source channel.
// Exactly one of Runtime and Plugin is set.
type SourceReply struct {
	Runtime *RuntimeResponse
	Plugin  SourceResponse
}

// ParserCall is a decoded request envelope as seen by a parser guest.
type ParserCall struct {
	Runtime *RuntimeRequest
	Plugin  ParserRequest
}

// SourceCall is a decoded request envelope as seen by a byte-source guest.
type SourceCall struct {
	Runtime *RuntimeRequest
	Plugin  SourceRequest
}
