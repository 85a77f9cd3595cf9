// Package wasmplatform implements the "native shared library" platform
// loader backend as a WASM module loaded through Extism: library.Open opens a
// compiled .wasm file, its bootstrap export drives classloader registration
// through a register_plugin host call per class, and its registered classes
// run sandboxed inside the guest, reaching the host only through the
// TCP/UDP/ICMP/HTTP capability functions below. Grounded on plugin/wasm.go.
package wasmplatform

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	extism "github.com/extism/go-sdk"

	"github.com/joncooperworks/classloader/catalog"
	"github.com/joncooperworks/classloader/library"
)

func init() {
	library.RegisterBackend("wasm", func() (library.PlatformLoader, error) {
		return NewBackend(catalog.Global(), catalog.GlobalContext()), nil
	})
}

// Backend opens WASM plugin library files through Extism. Each Open call
// builds its own host-function set bound to fresh TCP, UDP and ICMP
// connTrackers, so
// connections opened by one loaded module never leak into another's.
type Backend struct {
	cat *catalog.Catalog
	ctx *catalog.RegistrationContext
	log *slog.Logger
}

// NewBackend returns a Backend that registers classes into cat/ctx.
func NewBackend(cat *catalog.Catalog, ctx *catalog.RegistrationContext) *Backend {
	return &Backend{cat: cat, ctx: ctx, log: slog.Default()}
}

// SetLogger overrides the logger used for diagnostic warnings.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l != nil {
		b.log = l
	}
}

// Open reads path as a compiled WASM module, instantiates it with the
// capability host functions and register_plugin bound, then invokes its
// exported "_register" bootstrap function. A module with no such export is
// not an error: it simply registers nothing (the library-load side effect is
// then limited to whatever it does eagerly during instantiation).
func (b *Backend) Open(ctx context.Context, path string) (library.Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wasm module %q: %w", path, err)
	}

	manifest := extism.Manifest{
		Wasm:         []extism.Wasm{extism.WasmData{Data: data}},
		AllowedHosts: []string{"*"},
	}
	config := extism.PluginConfig{
		EnableWasi:               true,
		EnableHttpResponseHeaders: true,
	}

	tcp := newConnTracker[*net.TCPConn]()
	udp := newConnTracker[*net.UDPConn]()
	icmpConns := newConnTracker[net.Conn]()
	ref := &pluginRef{}

	hostFunctions := []extism.HostFunction{
		newTCPConnectFunction(tcp),
		newTCPSendFunction(tcp),
		newTCPRecvFunction(tcp),
		newTCPCloseFunction(tcp),
		newUDPConnectFunction(udp),
		newUDPSendFunction(udp),
		newUDPRecvFunction(udp),
		newUDPCloseFunction(udp),
		newICMPSendFunction(icmpConns),
		newICMPRecvFunction(icmpConns),
		newHTTPRequestFunction(),
		newRegisterPluginFunction(b.cat, b.ctx, ref),
	}

	plug, err := extism.NewPlugin(ctx, manifest, config, hostFunctions)
	if err != nil {
		return nil, fmt.Errorf("create extism plugin from %q: %w", path, err)
	}
	ref.plugin = plug

	if plug.FunctionExists("_register") {
		if _, _, err := plug.Call("_register", nil); err != nil {
			plug.Close(ctx)
			tcp.closeAll()
			udp.closeAll()
			icmpConns.closeAll()
			return nil, fmt.Errorf("run bootstrap export of %q: %w", path, err)
		}
	} else {
		b.log.Debug("wasm module has no _register export; nothing was registered", "path", path)
	}

	return &wasmHandle{plugin: plug, tcp: tcp, udp: udp, icmp: icmpConns}, nil
}

// wasmHandle is the open Handle for one loaded WASM module: closing it tears
// down the Extism plugin and every connection it opened through the
// TCP/UDP/ICMP host functions, including raw ICMP sockets a blocked icmp_recv
// call is still parked on.
type wasmHandle struct {
	plugin *extism.Plugin
	tcp    *connTracker[*net.TCPConn]
	udp    *connTracker[*net.UDPConn]
	icmp   *connTracker[net.Conn]
}

func (h *wasmHandle) Close(ctx context.Context) error {
	h.tcp.closeAll()
	h.udp.closeAll()
	h.icmp.closeAll()
	return h.plugin.Close(ctx)
}
