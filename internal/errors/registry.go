package errors

import "sort"

// Template defines a registered error code.
type Template struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

var registry = map[string]Template{
	// Configuration (T1xx)

	"T101": {
		Category:   CategoryConfig,
		Message:    "Configuration file not found",
		Suggestion: "Create tempo.json or pass --config",
	},
	"T102": {
		Category:   CategoryConfig,
		Message:    "Configuration file is not valid JSON",
		Suggestion: "Check tempo.json for trailing commas or unquoted keys",
	},
	"T103": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},

	// Model source and runtime (T2xx)

	"T200": {
		Category:   CategoryModel,
		Message:    "Model source could not be loaded",
		Suggestion: "Check model.source; s3:// URIs use the default AWS credential chain",
	},
	"T201": {
		Category:   CategoryModel,
		Message:    "Model source does not compile",
		Suggestion: "Fix the syntax error and restart the server",
	},
	"T202": {
		Category:   CategoryModel,
		Message:    "Model source imports a forbidden package",
		Detail:     "Model source runs in an embedded interpreter that only exposes a small set of standard packages.",
		Suggestion: "Remove the import or add it to model.allowedImports",
	},
	"T203": {
		Category: CategoryRuntime,
		Message:  "Root class could not be instantiated",
	},
	"T204": {
		Category:   CategoryModel,
		Message:    "Root class not found",
		Suggestion: "Run `tempo classes` to list the classes the model declares",
	},

	// Server (T3xx)

	"T301": {
		Category:   CategoryServer,
		Message:    "Server failed to listen",
		Suggestion: "Check that server.address is free",
	},
	"T302": {
		Category: CategoryServer,
		Message:  "Server stopped unexpectedly",
	},
}

// Codes returns every registered code in order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Lookup returns the template for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
