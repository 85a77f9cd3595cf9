package wasmplatform

import (
	"context"
	"encoding/json"
	"fmt"

	extism "github.com/extism/go-sdk"

	"github.com/joncooperworks/classloader/classloader"
)

// PluginProxy implements classloader.Plugin for exactly one class hosted
// inside a single guest module, by forwarding each call into that guest
// module's exports, namespaced by class name: a class "Alpha" exports
// "Alpha__description", "Alpha__json_schema", and "Alpha__execute". This is
// how one compiled WASM module can self-register many distinct plugin
// classes through a single register_plugin host call per class.
type PluginProxy struct {
	plugin    *extism.Plugin
	className string
}

// Name returns the class name this proxy was registered under.
func (p *PluginProxy) Name() string { return p.className }

// Description forwards to the guest's "<class>__description" export.
func (p *PluginProxy) Description() string {
	result, err := p.callString("description")
	if err != nil {
		return "WASM plugin"
	}
	return result
}

// JSONSchema forwards to the guest's "<class>__json_schema" export.
func (p *PluginProxy) JSONSchema() string {
	result, err := p.callString("json_schema")
	if err != nil {
		return "{}"
	}
	return result
}

// Execute forwards to the guest's "<class>__execute" export, passing args as
// input and parsing the guest's output as JSON.
func (p *PluginProxy) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	exitCode, resultBytes, err := p.plugin.Call(p.export("execute"), []byte(args))
	if err != nil {
		return nil, fmt.Errorf("failed to execute WASM function for class %q: %w", p.className, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("class %q execute returned non-zero exit code: %d", p.className, exitCode)
	}
	if len(resultBytes) == 0 {
		return nil, fmt.Errorf("class %q execute returned empty result", p.className)
	}

	var result interface{}
	if err := json.Unmarshal(resultBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON result for class %q: %w", p.className, err)
	}
	return result, nil
}

func (p *PluginProxy) callString(fn string) (string, error) {
	exitCode, resultBytes, err := p.plugin.Call(p.export(fn), nil)
	if err != nil {
		return "", fmt.Errorf("failed to call %s for class %q: %w", fn, p.className, err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("class %q %s returned non-zero exit code: %d", p.className, fn, exitCode)
	}
	return string(resultBytes), nil
}

func (p *PluginProxy) export(fn string) string {
	return p.className + "__" + fn
}

var _ classloader.Plugin = (*PluginProxy)(nil)
