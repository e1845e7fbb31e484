package rpc

import "fmt"

// Plugin-arm discriminants. Stable within a protocol revision.
const (
	parserReqSetup byte = 0
	parserReqParse byte = 1

	parserRespSetupDone byte = 0
	parserRespResults   byte = 1

	parseResultOk         byte = 0
	parseResultIncomplete byte = 1
	parseResultEof        byte = 2
	parseResultError      byte = 3

	sourceReqSetup   byte = 0
	sourceReqConsume byte = 1
	sourceReqReload  byte = 2

	sourceRespSetupDone    byte = 0
	sourceRespConsumeDone  byte = 1
	sourceRespReloadResult byte = 2

	reloadResultOk    byte = 0
	reloadResultEof   byte = 1
	reloadResultError byte = 2
)

// EncodeRuntimeRequest frames a runtime control request.
func EncodeRuntimeRequest(req RuntimeRequest) []byte {
	e := newEncoder()
	e.u8(tagRuntime)
	e.u8(byte(req))
	return e.buf
}

// EncodeRuntimeResponse frames a runtime control reply.
func EncodeRuntimeResponse(resp RuntimeResponse) []byte {
	e := newEncoder()
	e.u8(tagRuntime)
	e.u8(byte(resp.Kind))
	if resp.Kind == RuntimeRespVersion {
		e.u32(resp.Revision)
	}
	return e.buf
}

// EncodeParserRequest frames a parser plugin request.
func EncodeParserRequest(req ParserRequest) []byte {
	e := newEncoder()
	e.u8(tagPlugin)
	switch r := req.(type) {
	case ParserSetup:
		e.u8(parserReqSetup)
		e.bool(r.WithStorageHeader)
	case ParserParse:
		e.u8(parserReqParse)
		e.bytes(r.Bytes)
	default:
		panic(fmt.Sprintf("rpc: unknown parser request %T", req))
	}
	return e.buf
}

// EncodeParserResponse frames a parser plugin reply.
func EncodeParserResponse(resp ParserResponse) []byte {
	e := newEncoder()
	e.u8(tagPlugin)
	switch r := resp.(type) {
	case ParserSetupDone:
		e.u8(parserRespSetupDone)
	case ParserResults:
		e.u8(parserRespResults)
		e.u32(uint32(len(r.Results)))
		for _, res := range r.Results {
			encodeParserResult(e, res)
		}
	default:
		panic(fmt.Sprintf("rpc: unknown parser response %T", resp))
	}
	return e.buf
}

func encodeParserResult(e *encoder, res ParserResult) {
	switch r := res.(type) {
	case ParseOk:
		e.u8(parseResultOk)
		e.u64(r.BytesRemaining)
		e.optStr(r.Message)
	case ParseIncomplete:
		e.u8(parseResultIncomplete)
	case ParseEof:
		e.u8(parseResultEof)
	case ParseErr:
		e.u8(parseResultError)
		e.str(r.Msg)
	default:
		panic(fmt.Sprintf("rpc: unknown parser result %T", res))
	}
}

// EncodeSourceRequest frames a byte-source plugin request.
func EncodeSourceRequest(req SourceRequest) []byte {
	e := newEncoder()
	e.u8(tagPlugin)
	switch r := req.(type) {
	case SourceSetup:
		e.u8(sourceReqSetup)
		e.str(r.InputPath)
		e.u64(r.TotalCapacity)
		e.u64(r.BufferMin)
	case SourceConsume:
		e.u8(sourceReqConsume)
		e.u64(r.Offset)
	case SourceReload:
		e.u8(sourceReqReload)
	default:
		panic(fmt.Sprintf("rpc: unknown source request %T", req))
	}
	return e.buf
}

// EncodeSourceResponse frames a byte-source plugin reply.
func EncodeSourceResponse(resp SourceResponse) []byte {
	e := newEncoder()
	e.u8(tagPlugin)
	switch r := resp.(type) {
	case SourceSetupDone:
		e.u8(sourceRespSetupDone)
	case SourceConsumeDone:
		e.u8(sourceRespConsumeDone)
	case SourceReloadResult:
		e.u8(sourceRespReloadResult)
		switch res := r.Result.(type) {
		case ReloadOk:
			e.u8(reloadResultOk)
			e.u64(res.NewlyLoadedBytes)
			e.u64(res.AvailableBytes)
			e.u64(res.SkippedBytes)
			e.bytes(res.Bytes)
		case ReloadEof:
			e.u8(reloadResultEof)
		case ReloadErr:
			e.u8(reloadResultError)
			e.str(res.Msg)
		default:
			panic(fmt.Sprintf("rpc: unknown reload result %T", r.Result))
		}
	default:
		panic(fmt.Sprintf("rpc: unknown source response %T", resp))
	}
	return e.buf
}
