package flux

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	starlarkjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

func registerJSON(b *registryBuilder) {
	b.add("json_dumps", "obj, indent=None, sort_keys=False", EffectPure, "JSON text of obj; dict keys are always emitted in sorted order.", builtinJSONDumps)
	b.add("json_loads", "s", EffectPure, "Value decoded from JSON text.", builtinJSONLoads)
	b.add("http_get", "url, timeout=10, headers=None", EffectIO|EffectBlocks, "Body of a GET response decoded to text.", builtinHTTPGet)
	b.add("http_post", "url, data=None, timeout=10, headers=None", EffectIO|EffectBlocks, "Body of a POST response; dicts and lists are sent as JSON.", builtinHTTPPost)
	b.add("url_encode", "params", EffectPure, "Query string built from a dict or key/value pairs.", builtinURLEncode)
	b.add("url_decode", "qs", EffectPure, "Dict of the non-blank pairs of a query string; later keys win.", builtinURLDecode)
}

// jsonDumps encodes v with the host JSON encoder. Compact output separates
// items with ", " and keys with ": "; indented output puts one item per line.
func jsonDumps(thread *starlark.Thread, v starlark.Value, indent string, indented bool) (string, error) {
	encoded, err := starlark.Call(thread, starlarkjson.Module.Members["encode"], starlark.Tuple{v}, nil)
	if err != nil {
		return "", hostError(KindType, err)
	}
	text := string(encoded.(starlark.String))
	if !indented {
		return spaceSeparators(text), nil
	}
	pretty, err := starlark.Call(thread, starlarkjson.Module.Members["indent"], starlark.Tuple{encoded},
		[]starlark.Tuple{{starlark.String("indent"), starlark.String(indent)}})
	if err != nil {
		return "", hostError(KindValue, err)
	}
	return string(pretty.(starlark.String)), nil
}

// spaceSeparators inserts a space after every ':' and ',' outside string
// literals.
func spaceSeparators(text string) string {
	var sb strings.Builder
	sb.Grow(len(text) + len(text)/4)
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		sb.WriteByte(c)
		switch {
		case inString && escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == ':' || c == ','):
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

func builtinJSONDumps(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var obj starlark.Value
	var indent starlark.Value = starlark.None
	sortKeys := false
	if err := unpack(fn, args, kwargs, "obj", &obj, "indent?", &indent, "sort_keys?", &sortKeys); err != nil {
		return nil, err
	}
	unit, indented := "", false
	switch v := indent.(type) {
	case starlark.NoneType:
	case starlark.Int:
		n, err := toInt(fn.Name(), v)
		if err != nil {
			return nil, err
		}
		unit, indented = strings.Repeat(" ", max(n, 0)), true
	case starlark.String:
		unit, indented = string(v), true
	default:
		return nil, newError(KindType, "json_dumps: indent must be an int, a string or None, got %s", indent.Type())
	}
	text, err := jsonDumps(thread, obj, unit, indented)
	if err != nil {
		return nil, err
	}
	return starlark.String(text), nil
}

func builtinJSONLoads(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &s); err != nil {
		return nil, err
	}
	text, ok := starlark.AsString(s)
	if !ok {
		return nil, newError(KindType, "the JSON object must be str or bytes, not %s", s.Type())
	}
	out, err := starlark.Call(thread, starlarkjson.Module.Members["decode"], starlark.Tuple{starlark.String(text)}, nil)
	if err != nil {
		return nil, hostError(KindJSONDecode, err)
	}
	return out, nil
}

// timeoutArg converts a timeout in seconds; None means no timeout.
func timeoutArg(name string, v starlark.Value) (time.Duration, error) {
	if v == starlark.None {
		return 0, nil
	}
	seconds, err := toFloat(name, v)
	if err != nil {
		return 0, err
	}
	d, err := durationOf(name, seconds, time.Second)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, newError(KindValue, "%s: timeout must be positive", name)
	}
	return d, nil
}

func headerArg(name string, v starlark.Value) (http.Header, error) {
	header := make(http.Header)
	if v == starlark.None {
		return header, nil
	}
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return nil, newError(KindType, "%s: headers must be a dict, got %s", name, v.Type())
	}
	for _, item := range dict.Items() {
		header.Set(displayString(item[0]), displayString(item[1]))
	}
	return header, nil
}

type httpCall struct {
	method      string
	url         string
	body        []byte
	header      http.Header
	timeout     time.Duration
	contentType string
}

func (rt *runtime) doHTTP(call httpCall) (starlark.Value, error) {
	ctx := rt.ctx
	if call.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.timeout)
		defer cancel()
	}
	var body io.Reader
	if call.body != nil {
		body = bytes.NewReader(call.body)
	}
	req, err := http.NewRequestWithContext(ctx, call.method, call.url, body)
	if err != nil {
		return nil, wrapError(KindValue, err, "invalid request: %v", err)
	}
	req.Header = call.header
	if call.contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", call.contentType)
	}

	logger := rt.engine.logger.With(zap.String("method", call.method), zap.String("url", call.url))
	logger.Debug("http request")
	resp, err := rt.engine.config.HTTPClient.Do(req)
	if err != nil {
		logger.Debug("http request failed", zap.Error(err))
		return nil, osError(err)
	}
	defer resp.Body.Close()
	logger.Debug("http response", zap.Int("status", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newError(KindHTTP, "HTTP Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, wrapError(KindUnicodeDecode, err, "decode response: %v", err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, osError(err)
	}
	return starlark.String(data), nil
}

func builtinHTTPGet(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rawURL string
	var timeout starlark.Value = starlark.MakeInt(10)
	var headers starlark.Value = starlark.None
	if err := unpack(fn, args, kwargs, "url", &rawURL, "timeout?", &timeout, "headers?", &headers); err != nil {
		return nil, err
	}
	d, err := timeoutArg(fn.Name(), timeout)
	if err != nil {
		return nil, err
	}
	header, err := headerArg(fn.Name(), headers)
	if err != nil {
		return nil, err
	}
	return runtimeOf(thread).doHTTP(httpCall{method: http.MethodGet, url: rawURL, header: header, timeout: d})
}

func builtinHTTPPost(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rawURL string
	var data starlark.Value = starlark.None
	var timeout starlark.Value = starlark.MakeInt(10)
	var headers starlark.Value = starlark.None
	if err := unpack(fn, args, kwargs, "url", &rawURL, "data?", &data, "timeout?", &timeout, "headers?", &headers); err != nil {
		return nil, err
	}
	d, err := timeoutArg(fn.Name(), timeout)
	if err != nil {
		return nil, err
	}
	header, err := headerArg(fn.Name(), headers)
	if err != nil {
		return nil, err
	}
	call := httpCall{method: http.MethodPost, url: rawURL, header: header, timeout: d}
	switch data.(type) {
	case starlark.NoneType:
	case *starlark.Dict, *starlark.List:
		text, err := jsonDumps(thread, data, "", false)
		if err != nil {
			return nil, err
		}
		call.body = []byte(text)
		call.contentType = "application/json"
	default:
		call.body = []byte(displayString(data))
	}
	return runtimeOf(thread).doHTTP(call)
}

func builtinURLEncode(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var params starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &params); err != nil {
		return nil, err
	}
	var pairs []starlark.Tuple
	if dict, ok := params.(*starlark.Dict); ok {
		pairs = dict.Items()
	} else {
		elems, err := elements(fn.Name(), params)
		if err != nil {
			return nil, err
		}
		for _, elem := range elems {
			pair, err := elements(fn.Name(), elem)
			if err != nil || len(pair) != 2 {
				return nil, newError(KindType, "not a valid non-string sequence or mapping object")
			}
			pairs = append(pairs, starlark.Tuple{pair[0], pair[1]})
		}
	}
	parts := make([]string, len(pairs))
	for i, pair := range pairs {
		parts[i] = url.QueryEscape(displayString(pair[0])) + "=" + url.QueryEscape(displayString(pair[1]))
	}
	return starlark.String(strings.Join(parts, "&")), nil
}

func builtinURLDecode(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var qs string
	if err := unpackPositional(fn, args, kwargs, 1, &qs); err != nil {
		return nil, err
	}
	out := starlark.NewDict(0)
	for _, field := range strings.Split(qs, "&") {
		key, value, ok := strings.Cut(field, "=")
		if !ok || value == "" {
			continue
		}
		if err := out.SetKey(starlark.String(unquotePlus(key)), starlark.String(unquotePlus(value))); err != nil {
			return nil, hostError(KindType, err)
		}
	}
	return out, nil
}

// unquotePlus decodes a query component, leaving malformed escapes as they
// are.
func unquotePlus(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return strings.ReplaceAll(s, "+", " ")
	}
	return decoded
}
