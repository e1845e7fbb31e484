package rpc

import "fmt"

func decodeRuntimeRequest(d *decoder) (*RuntimeRequest, error) {
	v, err := d.u8()
	if err != nil {
		return nil, err
	}
	if v > byte(RuntimeShutdown) {
		return nil, d.fail(fmt.Sprintf("invalid runtime request %d", v))
	}
	req := RuntimeRequest(v)
	return &req, nil
}

func decodeRuntimeResponse(d *decoder) (*RuntimeResponse, error) {
	v, err := d.u8()
	if err != nil {
		return nil, err
	}
	if v > byte(RuntimeRespError) {
		return nil, d.fail(fmt.Sprintf("invalid runtime response %d", v))
	}
	resp := &RuntimeResponse{Kind: RuntimeResponseKind(v)}
	if resp.Kind == RuntimeRespVersion {
		if resp.Revision, err = d.u32(); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// DecodeRuntimeResponse decodes the runtime arm of a response envelope.
// A plugin-arm envelope yields (nil, nil): structurally sound but not a
// runtime reply, since the payload kind is unknown on a runtime-only
// channel. Callers treat nil as an unexpected response.
func DecodeRuntimeResponse(buf []byte) (*RuntimeResponse, error) {
	d := newDecoder(buf)
	tag, err := d.u8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagRuntime:
		resp, err := decodeRuntimeResponse(d)
		if err != nil {
			return nil, err
		}
		if err := d.finish(); err != nil {
			return nil, err
		}
		return resp, nil
	case tagPlugin:
		return nil, nil
	default:
		return nil, d.fail(fmt.Sprintf("invalid envelope tag %d", tag))
	}
}

// DecodeParserResponse decodes a response envelope on a parser channel.
func DecodeParserResponse(buf []byte) (ParserReply, error) {
	d := newDecoder(buf)
	tag, err := d.u8()
	if err != nil {
		return ParserReply{}, err
	}
	var reply ParserReply
	switch tag {
	case tagRuntime:
		if reply.Runtime, err = decodeRuntimeResponse(d); err != nil {
			return ParserReply{}, err
		}
	case tagPlugin:
		if reply.Plugin, err = decodeParserResponse(d); err != nil {
			return ParserReply{}, err
		}
	default:
		return ParserReply{}, d.fail(fmt.Sprintf("invalid envelope tag %d", tag))
	}
	if err := d.finish(); err != nil {
		return ParserReply{}, err
	}
	return reply, nil
}

func decodeParserResponse(d *decoder) (ParserResponse, error) {
	v, err := d.u8()
	if err != nil {
		return nil, err
	}
	switch v {
	case parserRespSetupDone:
		return ParserSetupDone{}, nil
	case parserRespResults:
		count, err := d.u32()
		if err != nil {
			return nil, err
		}
		// Each result takes at least one byte; reject counts the buffer
		// cannot hold before allocating.
		if int64(count) > int64(len(d.buf)-d.off) {
			return nil, d.fail(fmt.Sprintf("result count %d exceeds buffer", count))
		}
		results := make([]ParserResult, 0, count)
		for i := uint32(0); i < count; i++ {
			res, err := decodeParserResult(d)
			if err != nil {
				return nil, err
			}
			results = append(results, res)
		}
		return ParserResults{Results: results}, nil
	default:
		return nil, d.fail(fmt.Sprintf("invalid parser response %d", v))
	}
}

func decodeParserResult(d *decoder) (ParserResult, error) {
	v, err := d.u8()
	if err != nil {
		return nil, err
	}
	switch v {
	case parseResultOk:
		var ok ParseOk
		if ok.BytesRemaining, err = d.u64(); err != nil {
			return nil, err
		}
		if ok.Message, err = d.optStr(); err != nil {
			return nil, err
		}
		return ok, nil
	case parseResultIncomplete:
		return ParseIncomplete{}, nil
	case parseResultEof:
		return ParseEof{}, nil
	case parseResultError:
		msg, err := d.str()
		if err != nil {
			return nil, err
		}
		return ParseErr{Msg: msg}, nil
	default:
		return nil, d.fail(fmt.Sprintf("invalid parser result %d", v))
	}
}

// DecodeSourceResponse decodes a response envelope on a byte-source channel.
func DecodeSourceResponse(buf []byte) (SourceReply, error) {
	d := newDecoder(buf)
	tag, err := d.u8()
	if err != nil {
		return SourceReply{}, err
	}
	var reply SourceReply
	switch tag {
	case tagRuntime:
		if reply.Runtime, err = decodeRuntimeResponse(d); err != nil {
			return SourceReply{}, err
		}
	case tagPlugin:
		if reply.Plugin, err = decodeSourceResponse(d); err != nil {
			return SourceReply{}, err
		}
	default:
		return SourceReply{}, d.fail(fmt.Sprintf("invalid envelope tag %d", tag))
	}
	if err := d.finish(); err != nil {
		return SourceReply{}, err
	}
	return reply, nil
}

func decodeSourceResponse(d *decoder) (SourceResponse, error) {
	v, err := d.u8()
	if err != nil {
		return nil, err
	}
	switch v {
	case sourceRespSetupDone:
		return SourceSetupDone{}, nil
	case sourceRespConsumeDone:
		return SourceConsumeDone{}, nil
	case sourceRespReloadResult:
		res, err := decodeReloadResult(d)
		if err != nil {
			return nil, err
		}
		return SourceReloadResult{Result: res}, nil
	default:
		return nil, d.fail(fmt.Sprintf("invalid source response %d", v))
	}
}

func decodeReloadResult(d *decoder) (ReloadResult, error) {
	v, err := d.u8()
	if err != nil {
		return nil, err
	}
	switch v {
	case reloadResultOk:
		var ok ReloadOk
		if ok.NewlyLoadedBytes, err = d.u64(); err != nil {
			return nil, err
		}
		if ok.AvailableBytes, err = d.u64(); err != nil {
			return nil, err
		}
		if ok.SkippedBytes, err = d.u64(); err != nil {
			return nil, err
		}
		if ok.Bytes, err = d.bytes(); err != nil {
			return nil, err
		}
		return ok, nil
	case reloadResultEof:
		return ReloadEof{}, nil
	case reloadResultError:
		msg, err := d.str()
		if err != nil {
			return nil, err
		}
		return ReloadErr{Msg: msg}, nil
	default:
		return nil, d.fail(fmt.Sprintf("invalid reload result %d", v))
	}
}

// DecodeParserRequest decodes a request envelope as seen by a parser guest.
func DecodeParserRequest(buf []byte) (ParserCall, error) {
	d := newDecoder(buf)
	tag, err := d.u8()
	if err != nil {
		return ParserCall{}, err
	}
	var call ParserCall
	switch tag {
	case tagRuntime:
		if call.Runtime, err = decodeRuntimeRequest(d); err != nil {
			return ParserCall{}, err
		}
	case tagPlugin:
		if call.Plugin, err = decodeParserRequest(d); err != nil {
			return ParserCall{}, err
		}
	default:
		return ParserCall{}, d.fail(fmt.Sprintf("invalid envelope tag %d", tag))
	}
	if err := d.finish(); err != nil {
		return ParserCall{}, err
	}
	return call, nil
}

func decodeParserRequest(d *decoder) (ParserRequest, error) {
	v, err := d.u8()
	if err != nil {
		return nil, err
	}
	switch v {
	case parserReqSetup:
		withHeader, err := d.bool()
		if err != nil {
			return nil, err
		}
		return ParserSetup{WithStorageHeader: withHeader}, nil
	case parserReqParse:
		bytes, err := d.bytes()
		if err != nil {
			return nil, err
		}
		return ParserParse{Bytes: bytes}, nil
	default:
		return nil, d.fail(fmt.Sprintf("invalid parser request %d", v))
	}
}

// DecodeSourceRequest decodes a request envelope as seen by a byte-source
// guest.
func DecodeSourceRequest(buf []byte) (SourceCall, error) {
	d := newDecoder(buf)
	tag, err := d.u8()
	if err != nil {
		return SourceCall{}, err
	}
	var call SourceCall
	switch tag {
	case tagRuntime:
		if call.Runtime, err = decodeRuntimeRequest(d); err != nil {
			return SourceCall{}, err
		}
	case tagPlugin:
		if call.Plugin, err = decodeSourceRequest(d); err != nil {
			return SourceCall{}, err
		}
	default:
		return SourceCall{}, d.fail(fmt.Sprintf("invalid envelope tag %d", tag))
	}
	if err := d.finish(); err != nil {
		return SourceCall{}, err
	}
	return call, nil
}

func decodeSourceRequest(d *decoder) (SourceRequest, error) {
	v, err := d.u8()
	if err != nil {
		return nil, err
	}
	switch v {
	case sourceReqSetup:
		var setup SourceSetup
		if setup.InputPath, err = d.str(); err != nil {
			return nil, err
		}
		if setup.TotalCapacity, err = d.u64(); err != nil {
			return nil, err
		}
		if setup.BufferMin, err = d.u64(); err != nil {
			return nil, err
		}
		return setup, nil
	case sourceReqConsume:
		offset, err := d.u64()
		if err != nil {
			return nil, err
		}
		return SourceConsume{Offset: offset}, nil
	case sourceReqReload:
		return SourceReload{}, nil
	default:
		return nil, d.fail(fmt.Sprintf("invalid source request %d", v))
	}
}
