package executor

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	language "github.com/hanpama/tracegraph/internal/language"
	schema "github.com/hanpama/tracegraph/internal/schema"
)

// coerceVariableValues coerces the supplied variables against the variable
// definitions of operation. Omitted variables take their default; omitted
// variables without one are left out unless required.
func coerceVariableValues(sch *schema.Schema, operation *language.OperationDefinition, values map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(operation.VariableDefinitions))
	for _, def := range operation.VariableDefinitions {
		name, t := def.Variable, def.Type
		val, ok := values[name]
		if !ok {
			switch {
			case def.DefaultValue != nil:
				val = astValueToGo(def.DefaultValue)
			case t.NonNull:
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, t.String())
			default:
				continue
			}
		}
		if val == nil && t.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, t.String())
		}
		cv, err := coerceValue(sch, val, typeRefFromAST(t))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %v", name, t.String(), err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// coerceArgumentValues coerces the arguments of one field selection.
// Failures are recorded at path and the argument is left out.
func coerceArgumentValues(
	fieldDef *schema.Field,
	arguments language.ArgumentList,
	variableValues map[string]any,
	state *executionState,
	path Path,
) map[string]any {
	coerced := make(map[string]any)
	for _, def := range fieldDef.Arguments {
		arg := arguments.ForName(def.Name)
		if arg == nil {
			if def.DefaultValue != nil {
				coerced[def.Name] = def.DefaultValue
			} else if schema.IsNonNull(def.Type) {
				state.addError(fmt.Sprintf("argument '%s' of required type was not provided", def.Name), path)
			}
			continue
		}
		if arg.Value.Kind == language.Variable {
			if _, ok := variableValues[arg.Value.Raw]; !ok {
				if def.DefaultValue != nil {
					coerced[def.Name] = def.DefaultValue
				}
				continue
			}
		}
		cv, err := coerceValue(state.schema, valueFromAST(arg.Value, variableValues), def.Type)
		if err != nil {
			state.addError(fmt.Sprintf("argument '%s' cannot be coerced: %v", def.Name, err), path)
			continue
		}
		coerced[def.Name] = cv
	}
	return coerced
}

// valueFromAST converts a literal to a Go value, substituting variables.
func valueFromAST(value *language.Value, variableValues map[string]any) any {
	if value == nil {
		return nil
	}
	if value.Kind == language.Variable {
		return variableValues[value.Raw]
	}
	if value.Kind == language.ListValue || value.Kind == language.ObjectValue {
		return compositeFromAST(value, func(v *language.Value) any { return valueFromAST(v, variableValues) })
	}
	return astValueToGo(value)
}

// astValueToGo converts a constant literal to a Go value.
func astValueToGo(value *language.Value) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.IntValue:
		iv, _ := strconv.Atoi(value.Raw)
		return iv
	case language.FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.ListValue, language.ObjectValue:
		return compositeFromAST(value, astValueToGo)
	default:
		return nil
	}
}

func compositeFromAST(value *language.Value, convert func(*language.Value) any) any {
	if value.Kind == language.ListValue {
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = convert(c.Value)
		}
		return out
	}
	out := make(map[string]any, len(value.Children))
	for _, c := range value.Children {
		out[c.Name] = convert(c.Value)
	}
	return out
}

// coerceValue coerces an input value to t. sch resolves enum and input
// object types; other named types pass through unchanged.
func coerceValue(sch *schema.Schema, value any, t *schema.TypeRef) (any, error) {
	if schema.IsNonNull(t) {
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type %s", t)
		}
		return coerceValue(sch, value, schema.Unwrap(t))
	}
	if value == nil {
		return nil, nil
	}
	if t.Kind == schema.TypeRefKindList {
		items, ok := value.([]any)
		if !ok {
			// A single item is coerced to a list of one.
			item, err := coerceValue(sch, value, t.OfType)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := coerceValue(sch, item, t.OfType)
			if err != nil {
				return nil, fmt.Errorf("at index %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}

	if coerce, ok := scalarCoercers[t.Named]; ok {
		return coerce(value)
	}
	var def *schema.Type
	if sch != nil {
		def = sch.Types[t.Named]
	}
	if def == nil {
		return value, nil
	}
	switch def.Kind {
	case schema.TypeKindEnum:
		return coerceEnum(def, value)
	case schema.TypeKindInputObject:
		return coerceInputObject(sch, def, value)
	default:
		return value, nil
	}
}

var scalarCoercers = map[string]func(any) (any, error){
	"Int":     coerceToInt,
	"Float":   coerceToFloat,
	"String":  coerceToString,
	"Boolean": coerceToBoolean,
	"ID":      coerceToID,
}

func coerceEnum(def *schema.Type, value any) (any, error) {
	name, ok := value.(string)
	if ok && slices.ContainsFunc(def.EnumValues, func(v *schema.EnumValue) bool { return v.Name == name }) {
		return name, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to enum %s", value, value, def.Name)
}

func coerceInputObject(sch *schema.Schema, def *schema.Type, value any) (any, error) {
	in, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot coerce %v (%T) to input object %s", value, value, def.Name)
	}
	for key := range in {
		if !slices.ContainsFunc(def.InputFields, func(f *schema.InputValue) bool { return f.Name == key }) {
			return nil, fmt.Errorf("unknown field '%s' on input object %s", key, def.Name)
		}
	}
	out := make(map[string]any, len(def.InputFields))
	for _, f := range def.InputFields {
		v, ok := in[f.Name]
		if !ok {
			if f.DefaultValue != nil {
				out[f.Name] = f.DefaultValue
			} else if schema.IsNonNull(f.Type) {
				return nil, fmt.Errorf("required field '%s' of input object %s was not provided", f.Name, def.Name)
			}
			continue
		}
		cv, err := coerceValue(sch, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", f.Name, err)
		}
		out[f.Name] = cv
	}
	if def.OneOf && len(out) != 1 {
		return nil, fmt.Errorf("exactly one field of oneOf input object %s must be provided", def.Name)
	}
	return out, nil
}

// coerceToInt accepts integral numbers within the 32-bit range. JSON
// variables arrive as float64.
func coerceToInt(value any) (any, error) {
	var n float64
	switch v := value.(type) {
	case int:
		n = float64(v)
	case int32:
		n = float64(v)
	case int64:
		n = float64(v)
	case float64:
		n = v
	case float32:
		n = float64(v)
	default:
		return nil, fmt.Errorf("cannot coerce %v (%T) to Int", value, value)
	}
	if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
		return nil, fmt.Errorf("cannot coerce %v to Int", value)
	}
	return int(n), nil
}

func coerceToFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to Float", value, value)
}

func coerceToString(value any) (any, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to String", value, value)
}

func coerceToBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to Boolean", value, value)
}

func coerceToID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int, int32, int64:
		return fmt.Sprint(v), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatFloat(v, 'f', 0, 64), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to ID", value, value)
}
