package wasmplatform

import (
	"context"
	"fmt"

	extism "github.com/extism/go-sdk"

	"github.com/joncooperworks/classloader/catalog"
	"github.com/joncooperworks/classloader/classloader"
)

// pluginRef is a mutable cell a register_plugin closure captures before the
// *extism.Plugin it will point at has been constructed: the host function
// list must be built before extism.NewPlugin returns the Plugin, but the
// guest's bootstrap export (which drives register_plugin) can only run after
// it exists. Open sets ref.plugin once NewPlugin succeeds, immediately before
// invoking the bootstrap export.
type pluginRef struct {
	plugin *extism.Plugin
}

// newRegisterPluginFunction adapts the registration contract from
// classloader's registration macro equivalent (classloader.Register) into a
// host-imported ABI call a guest module's bootstrap export makes once per
// exported class. Follows this codebase's existing host functions in taking
// each string as a single Extism memory-block offset (ReadString resolves
// the block's embedded length) rather than a raw (ptr, len) pair.
func newRegisterPluginFunction(cat *catalog.Catalog, ctx *catalog.RegistrationContext, ref *pluginRef) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"register_plugin",
		func(_ context.Context, p *extism.CurrentPlugin, stack []uint64) {
			classNameOffset := stack[0]
			baseClassNameOffset := stack[1]

			className, err := p.ReadString(classNameOffset)
			if err != nil {
				p.Log(extism.LogLevelError, fmt.Sprintf("register_plugin: failed to read class name: %v", err))
				return
			}
			baseClassName, err := p.ReadString(baseClassNameOffset)
			if err != nil {
				p.Log(extism.LogLevelError, fmt.Sprintf("register_plugin: failed to read base class name: %v", err))
				return
			}

			handle := classloader.Register[classloader.Plugin, *PluginProxy](ctx, cat, className, baseClassName, func() *PluginProxy {
				return &PluginProxy{plugin: ref.plugin, className: className}
			})
			_ = handle // the Backend keeps no reference; the library's Close path unwinds via the catalog/graveyard protocol, not per-handle release

			p.Log(extism.LogLevelInfo, fmt.Sprintf("register_plugin: registered class %q (base %q)", className, baseClassName))
		},
		[]extism.ValueType{extism.ValueTypeI64, extism.ValueTypeI64},
		[]extism.ValueType{},
	)
	fn.SetNamespace("env")
	return fn
}
