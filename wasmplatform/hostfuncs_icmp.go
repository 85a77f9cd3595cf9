package wasmplatform

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	extism "github.com/extism/go-sdk"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// newICMPSendFunction adapts plugin/wasm.go's icmp_send host function. Unlike
// the teacher's version, the dial honors the host call's context (so a dial
// is abandoned as soon as that context is cancelled) and the open
// socket is tracked in tracker for the duration of the call, so wasmHandle's
// Close can force it shut rather than waiting out its own write deadline.
// WASM signature: (param i64 i64 i64 i32) (result i32) - target_offset, payload_offset, payload_len, seq -> success
func newICMPSendFunction(tracker *connTracker[net.Conn]) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"icmp_send",
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			targetOffset := stack[0]
			payloadOffset := stack[1]
			payloadLen := stack[2]
			seq := uint16(stack[3])

			target, err := p.ReadString(targetOffset)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("icmp_send: failed to read target: %v", err))
				return
			}
			payload, err := p.ReadBytes(payloadOffset)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("icmp_send: failed to read payload: %v", err))
				return
			}
			if uint64(len(payload)) > payloadLen {
				payload = payload[:payloadLen]
			}

			ipAddr, err := net.ResolveIPAddr("ip", target)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("icmp_send: failed to resolve target %s: %v", target, err))
				return
			}

			icmpMsg := &icmp.Message{
				Type: ipv4.ICMPTypeEcho,
				Code: 0,
				Body: &icmp.Echo{ID: 1, Seq: int(seq), Data: payload},
			}
			icmpBytes, err := icmpMsg.Marshal(nil)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("icmp_send: failed to marshal ICMP message: %v", err))
				return
			}

			dialer := &net.Dialer{}
			conn, err := dialer.DialContext(ctx, "ip4:icmp", ipAddr.String())
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("icmp_send: failed to dial ICMP: %v", err))
				return
			}
			id := tracker.add(conn)
			defer func() {
				tracker.remove(id)
				conn.Close()
			}()

			deadline := time.Now().Add(5 * time.Second)
			if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
				deadline = ctxDeadline
			}
			conn.SetWriteDeadline(deadline)

			if _, err := conn.Write(icmpBytes); err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("icmp_send: failed to send ICMP packet: %v", err))
				return
			}

			stack[0] = 1
			p.Log(extism.LogLevelInfo, fmt.Sprintf("icmp_send: sent ICMP packet to %s (seq=%d, payload_len=%d)", target, seq, len(payload)))
		},
		[]extism.ValueType{extism.ValueTypeI64, extism.ValueTypeI64, extism.ValueTypeI64, extism.ValueTypeI32},
		[]extism.ValueType{extism.ValueTypeI32},
	)
	fn.SetNamespace("env")
	return fn
}

// newICMPRecvFunction adapts plugin/wasm.go's icmp_recv host function. The
// listening socket is tracked the same way newICMPSendFunction's dial is: a
// cancelled context forces the blocking ReadFrom below to return immediately
// by racing a deadline reset against ctx.Done, instead of leaving the raw
// socket parked for the rest of timeout_ms after the caller has moved on.
// WASM signature: (param i32) (result i64) - timeout_ms -> json_offset
func newICMPRecvFunction(tracker *connTracker[net.Conn]) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"icmp_recv",
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			timeoutMs := uint32(stack[0])

			listener, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("icmp_recv: failed to listen: %v", err))
				return
			}
			conn, ok := listener.(net.Conn)
			if !ok {
				stack[0] = 0
				p.Log(extism.LogLevelError, "icmp_recv: listener does not support tracked shutdown")
				listener.Close()
				return
			}
			id := tracker.add(conn)
			defer func() {
				tracker.remove(id)
				conn.Close()
			}()

			deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
			if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
				deadline = ctxDeadline
			}
			conn.SetReadDeadline(deadline)

			cancelled := make(chan struct{})
			done := make(chan struct{})
			defer close(done)
			go func() {
				select {
				case <-ctx.Done():
					close(cancelled)
					conn.SetReadDeadline(time.Now())
				case <-done:
				}
			}()

			buf := make([]byte, 1500)
			n, addr, err := listener.ReadFrom(buf)
			if err != nil {
				select {
				case <-cancelled:
					stack[0] = 0
					p.Log(extism.LogLevelInfo, "icmp_recv: cancelled by caller")
					return
				default:
				}
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					stack[0] = 0
					return
				}
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("icmp_recv: failed to receive: %v", err))
				return
			}

			msg, err := icmp.ParseMessage(1, buf[:n])
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("icmp_recv: failed to parse ICMP message: %v", err))
				return
			}

			icmpType := 0
			if t, ok := msg.Type.(ipv4.ICMPType); ok {
				icmpType = int(t)
			}
			response := map[string]interface{}{
				"source": addr.String(),
				"type":   icmpType,
				"code":   msg.Code,
			}
			if echo, ok := msg.Body.(*icmp.Echo); ok {
				response["id"] = echo.ID
				response["seq"] = echo.Seq
				response["data"] = echo.Data
			} else {
				response["data"] = []byte{}
			}

			jsonBytes, err := json.Marshal(response)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("icmp_recv: failed to marshal JSON: %v", err))
				return
			}
			jsonOffset, err := p.WriteBytes(jsonBytes)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("icmp_recv: failed to write JSON to plugin memory: %v", err))
				return
			}
			stack[0] = jsonOffset
			p.Log(extism.LogLevelInfo, fmt.Sprintf("icmp_recv: received ICMP packet from %s (type=%d, code=%d)", addr, msg.Type, msg.Code))
		},
		[]extism.ValueType{extism.ValueTypeI32},
		[]extism.ValueType{extism.ValueTypeI64},
	)
	fn.SetNamespace("env")
	return fn
}
