package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/models"
)

var violationPrinter = message.NewPrinter(language.English)

// validateParams compiles the tool's parameter schema, fills in declared
// defaults for absent properties, and validates the result. Every violation
// is collected so the caller sees the complete list in one pass.
func validateParams(tool *models.ToolDescriptor, params map[string]any) (map[string]any, error) {
	if tool.Parameters == nil {
		if params == nil {
			params = map[string]any{}
		}
		return params, nil
	}

	sch, err := compileSchema(tool)
	if err != nil {
		return nil, err
	}

	params = applyDefaults(tool.Parameters, params)

	// Round-trip through JSON so the validator sees canonical types
	// regardless of how the caller built the map.
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, errs.Wrap(errs.KindSchemaValidation, "parameters are not JSON-encodable", err)
	}
	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return nil, errs.Wrap(errs.KindSchemaValidation, "parameters are not valid JSON", err)
	}

	if err := sch.Validate(decoded); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			fields, details := collectViolations(ve)
			return nil, &errs.Error{
				Kind:    errs.KindSchemaValidation,
				Message: fmt.Sprintf("parameters for %s rejected: %s", tool.Name, strings.Join(details, "; ")),
				Fields:  fields,
			}
		}
		return nil, errs.Wrap(errs.KindSchemaValidation, "parameter validation failed", err)
	}

	return params, nil
}

func compileSchema(tool *models.ToolDescriptor) (*jsonschema.Schema, error) {
	encoded, err := json.Marshal(tool.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode schema for %s: %w", tool.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode schema for %s: %w", tool.Name, err)
	}

	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("chatvault://tools/%s.json", tool.Name)
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("register schema for %s: %w", tool.Name, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", tool.Name, err)
	}
	return sch, nil
}

// applyDefaults copies params and fills in top-level property defaults the
// caller omitted. The validator itself does not apply defaults.
func applyDefaults(schema, params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return out
	}
	for name, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		def, has := prop["default"]
		if !has {
			continue
		}
		if _, present := out[name]; !present {
			out[name] = def
		}
	}
	return out
}

// collectViolations walks the validation error tree and returns the
// offending field names plus human-readable detail, one entry per leaf.
func collectViolations(ve *jsonschema.ValidationError) (fields []string, details []string) {
	seen := map[string]bool{}
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, cause := range e.Causes {
				walk(cause)
			}
			return
		}
		switch k := e.ErrorKind.(type) {
		case *kind.Required:
			for _, missing := range k.Missing {
				field := joinLocation(append(append([]string{}, e.InstanceLocation...), missing))
				if !seen[field] {
					seen[field] = true
					fields = append(fields, field)
				}
				details = append(details, fmt.Sprintf("%s is required", field))
			}
		default:
			field := joinLocation(e.InstanceLocation)
			if field == "" {
				field = "(root)"
			}
			if !seen[field] {
				seen[field] = true
				fields = append(fields, field)
			}
			details = append(details, fmt.Sprintf("%s: %s", field, e.ErrorKind.LocalizedString(violationPrinter)))
		}
	}
	walk(ve)
	sort.Strings(fields)
	return fields, details
}

func joinLocation(loc []string) string {
	return strings.Join(loc, ".")
}
