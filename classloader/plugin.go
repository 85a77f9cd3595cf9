package classloader

import (
	"context"
	"encoding/json"
)

// Plugin is the fixed base interface WASM-hosted plugin classes implement.
// A wasmplatform.PluginProxy satisfies it by forwarding each call into the
// guest module's exports; Go-native plugin classes implement it directly.
type Plugin interface {
	// Name returns the plugin's class name as it was registered.
	Name() string

	// Description returns a human-readable summary of what the plugin does.
	Description() string

	// JSONSchema returns the JSON Schema describing Execute's args.
	JSONSchema() string

	// Execute runs the plugin against args and returns its result.
	Execute(ctx context.Context, args json.RawMessage) (interface{}, error)
}
