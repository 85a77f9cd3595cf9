package wasmplatform

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	extism "github.com/extism/go-sdk"
)

// newHTTPRequestFunction adapts plugin/wasm.go's http_request host function.
// WASM signature: (param i64 i64 i64 i64) (result i64) - method_offset, url_offset, headers_offset, body_offset -> json_offset
func newHTTPRequestFunction() extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"http_request",
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			methodOffset := stack[0]
			urlOffset := stack[1]
			headersOffset := stack[2]
			bodyOffset := stack[3]

			method, err := p.ReadString(methodOffset)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("http_request: failed to read method: %v", err))
				return
			}
			url, err := p.ReadString(urlOffset)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("http_request: failed to read URL: %v", err))
				return
			}

			var headersJSON []string
			if headersOffset != 0 {
				headersStr, err := p.ReadString(headersOffset)
				if err != nil {
					stack[0] = 0
					p.Log(extism.LogLevelError, fmt.Sprintf("http_request: failed to read headers: %v", err))
					return
				}
				if headersStr != "" {
					if err := json.Unmarshal([]byte(headersStr), &headersJSON); err != nil {
						stack[0] = 0
						p.Log(extism.LogLevelError, fmt.Sprintf("http_request: failed to parse headers JSON: %v", err))
						return
					}
				}
			}

			var body []byte
			if bodyOffset != 0 {
				body, err = p.ReadBytes(bodyOffset)
				if err != nil {
					stack[0] = 0
					p.Log(extism.LogLevelError, fmt.Sprintf("http_request: failed to read body: %v", err))
					return
				}
			}

			var req *http.Request
			var errReq error
			if len(body) > 0 {
				req, errReq = http.NewRequestWithContext(ctx, method, url, strings.NewReader(string(body)))
			} else {
				req, errReq = http.NewRequestWithContext(ctx, method, url, nil)
			}
			if errReq != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("http_request: failed to create request: %v", errReq))
				return
			}

			for _, headerStr := range headersJSON {
				if idx := strings.Index(headerStr, ":"); idx > 0 {
					req.Header.Add(strings.TrimSpace(headerStr[:idx]), strings.TrimSpace(headerStr[idx+1:]))
				}
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("http_request: failed to execute request: %v", err))
				return
			}
			defer resp.Body.Close()

			respBody := make([]byte, 0)
			bodyBuf := make([]byte, 64*1024)
			for {
				n, readErr := resp.Body.Read(bodyBuf)
				if n > 0 {
					respBody = append(respBody, bodyBuf[:n]...)
				}
				if readErr != nil {
					break
				}
			}

			headersMap := make(map[string][]string)
			for key, values := range resp.Header {
				headersMap[http.CanonicalHeaderKey(key)] = values
			}

			response := map[string]interface{}{
				"status":  resp.StatusCode,
				"headers": headersMap,
				"body":    base64.StdEncoding.EncodeToString(respBody),
			}
			jsonBytes, err := json.Marshal(response)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("http_request: failed to marshal JSON: %v", err))
				return
			}
			jsonOffset, err := p.WriteBytes(jsonBytes)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("http_request: failed to write JSON to plugin memory: %v", err))
				return
			}
			stack[0] = jsonOffset
			p.Log(extism.LogLevelInfo, fmt.Sprintf("http_request: %s %s -> %d (body_len=%d)", method, url, resp.StatusCode, len(respBody)))
		},
		[]extism.ValueType{extism.ValueTypeI64, extism.ValueTypeI64, extism.ValueTypeI64, extism.ValueTypeI64},
		[]extism.ValueType{extism.ValueTypeI64},
	)
	fn.SetNamespace("env")
	return fn
}
