package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FunctionDetail is one entry of get_function_details's response (spec.md
// §4.5): a fully-qualified name, the rendered signature, description, and
// the raw JSON schemas the signature was derived from.
type FunctionDetail struct {
	FQName       string          `json:"fqname"`
	Signature    string          `json:"signature"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// FunctionIndexEntry is one function entry under list_functions's response.
type FunctionIndexEntry struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

// NamespaceIndex is one upstream's entry under list_functions's response.
type NamespaceIndex struct {
	Name      string                `json:"name"`
	Functions []FunctionIndexEntry `json:"functions"`
}

// ListFunctions builds the namespace/function name index for list_functions,
// deliberately excluding schemas and descriptions to keep the payload small
// (spec.md §4.2: "list_functions returns only the namespace/function name
// index").
func ListFunctions(c *Catalog) []NamespaceIndex {
	namespaces := make([]NamespaceIndex, 0, len(c.Upstreams()))
	for _, name := range c.Upstreams() {
		entry := c.Entry(name)
		if entry == nil {
			continue
		}
		functions := make([]FunctionIndexEntry, 0, len(entry.Tools))
		for _, t := range entry.Tools {
			functions = append(functions, FunctionIndexEntry{Name: t.Name, Title: t.Title})
		}
		namespaces = append(namespaces, NamespaceIndex{Name: name, Functions: functions})
	}
	return namespaces
}

// ParseFQName splits "<namespace>.<function>" into its two parts.
func ParseFQName(fq string) (namespace, function string, ok bool) {
	idx := strings.IndexByte(fq, '.')
	if idx < 0 || idx == 0 || idx == len(fq)-1 {
		return "", "", false
	}
	return fq[:idx], fq[idx+1:], true
}

// GetFunctionDetails resolves each requested fully-qualified name against
// the Catalog, preserving input ordering; unknown names yield an entry
// carrying Error:"unknown" rather than failing the whole call (spec.md
// §4.5).
func GetFunctionDetails(c *Catalog, names []string) []FunctionDetail {
	details := make([]FunctionDetail, 0, len(names))
	for _, fq := range names {
		namespace, function, ok := ParseFQName(fq)
		if !ok {
			details = append(details, FunctionDetail{FQName: fq, Error: "unknown"})
			continue
		}
		tool := c.Tool(namespace, function)
		if tool == nil {
			details = append(details, FunctionDetail{FQName: fq, Error: "unknown"})
			continue
		}
		details = append(details, FunctionDetail{
			FQName:       fq,
			Signature:    renderSignature(function, *tool),
			Description:  tool.Description,
			InputSchema:  tool.InputSchema,
			OutputSchema: tool.OutputSchema,
		})
	}
	return details
}

func renderSignature(name string, t ToolDescriptor) string {
	argsType := typeSignatureForInput(t.InputSchema)
	retType := "any"
	if len(t.OutputSchema) > 0 {
		retType = typeSignature(t.OutputSchema, true)
	}
	sig := fmt.Sprintf("function %s(args: %s): Promise<%s>;", name, argsType, retType)
	if t.Description == "" {
		return sig
	}
	return fmt.Sprintf("/** %s */\n%s", t.Description, sig)
}
