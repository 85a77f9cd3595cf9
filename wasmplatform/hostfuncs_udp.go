package wasmplatform

import (
	"context"
	"fmt"
	"net"
	"time"

	extism "github.com/extism/go-sdk"
)

// newUDPConnectFunction: (param i64) (result i32) - addr_offset -> conn_id
func newUDPConnectFunction(tracker *connTracker[*net.UDPConn]) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"udp_connect",
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			addr, err := p.ReadString(stack[0])
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("udp_connect: failed to read address: %v", err))
				return
			}
			udpAddr, err := net.ResolveUDPAddr("udp", addr)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("udp_connect: failed to resolve address %s: %v", addr, err))
				return
			}
			conn, err := net.DialUDP("udp", nil, udpAddr)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("udp_connect: failed to connect to %s: %v", addr, err))
				return
			}
			connID := tracker.add(conn)
			stack[0] = uint64(connID)
			p.Log(extism.LogLevelInfo, fmt.Sprintf("udp_connect: connected to %s (conn_id=%d)", addr, connID))
		},
		[]extism.ValueType{extism.ValueTypeI64},
		[]extism.ValueType{extism.ValueTypeI32},
	)
	fn.SetNamespace("env")
	return fn
}

// newUDPSendFunction: (param i32 i64 i64) (result i32) - conn_id, data_offset, data_len -> bytes_sent
func newUDPSendFunction(tracker *connTracker[*net.UDPConn]) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"udp_send",
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			connID := uint32(stack[0])
			dataOffset := stack[1]
			dataLen := stack[2]

			conn, ok := tracker.get(connID)
			if !ok {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("udp_send: invalid connection ID %d", connID))
				return
			}
			data, err := p.ReadBytes(dataOffset)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("udp_send: failed to read data: %v", err))
				return
			}
			if uint64(len(data)) > dataLen {
				data = data[:dataLen]
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			bytesSent, err := conn.Write(data)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("udp_send: failed to send data: %v", err))
				return
			}
			stack[0] = uint64(bytesSent)
			p.Log(extism.LogLevelInfo, fmt.Sprintf("udp_send: sent %d bytes on conn_id=%d", bytesSent, connID))
		},
		[]extism.ValueType{extism.ValueTypeI32, extism.ValueTypeI64, extism.ValueTypeI64},
		[]extism.ValueType{extism.ValueTypeI32},
	)
	fn.SetNamespace("env")
	return fn
}

// newUDPRecvFunction: (param i32 i32) (result i64) - conn_id, max_len -> data_offset
func newUDPRecvFunction(tracker *connTracker[*net.UDPConn]) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"udp_recv",
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			connID := uint32(stack[0])
			maxLen := uint32(stack[1])

			conn, ok := tracker.get(connID)
			if !ok {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("udp_recv: invalid connection ID %d", connID))
				return
			}
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			buf := make([]byte, maxLen)
			n, err := conn.Read(buf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					stack[0] = 0
					return
				}
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("udp_recv: failed to receive data: %v", err))
				return
			}
			dataOffset, err := p.WriteBytes(buf[:n])
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("udp_recv: failed to write data to plugin memory: %v", err))
				return
			}
			stack[0] = dataOffset
			p.Log(extism.LogLevelInfo, fmt.Sprintf("udp_recv: received %d bytes on conn_id=%d", n, connID))
		},
		[]extism.ValueType{extism.ValueTypeI32, extism.ValueTypeI32},
		[]extism.ValueType{extism.ValueTypeI64},
	)
	fn.SetNamespace("env")
	return fn
}

// newUDPCloseFunction: (param i32) -> void - conn_id
func newUDPCloseFunction(tracker *connTracker[*net.UDPConn]) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"udp_close",
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			connID := uint32(stack[0])
			conn, ok := tracker.get(connID)
			if !ok {
				p.Log(extism.LogLevelWarn, fmt.Sprintf("udp_close: invalid connection ID %d", connID))
				return
			}
			conn.Close()
			tracker.remove(connID)
			p.Log(extism.LogLevelInfo, fmt.Sprintf("udp_close: closed conn_id=%d", connID))
		},
		[]extism.ValueType{extism.ValueTypeI32},
		[]extism.ValueType{},
	)
	fn.SetNamespace("env")
	return fn
}
