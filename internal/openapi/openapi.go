// Package openapi emits an OpenAPI 3.0 document from every service
// declaration reachable from a loaded registry: per-module type schemas
// keyed "m<id>_<Name>", responses keyed 200 + default, enums encoded as
// tagged {type, data}, and the shared error envelope as the default
// response of every operation.
package openapi

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/modules"
)

// Generate renders the registry's services as a compact OpenAPI 3.0 JSON
// document. Object keys serialize sorted, so output is deterministic.
func Generate(reg *modules.Registry) (string, error) {
	root := reg.RootUnit()
	if root == nil {
		return "", errors.New("no root module loaded")
	}
	title := strings.TrimSuffix(filepath.Base(root.Path), filepath.Ext(root.Path))
	if title == "" {
		title = "FUSE API"
	}
	b := &builder{reg: reg, title: title, schemaNames: make(map[schemaKey]string), moduleLabels: make(map[modules.ModuleId]string)}
	doc := b.build()
	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type schemaKey struct {
	module modules.ModuleId
	name   string
}

type builder struct {
	reg          *modules.Registry
	title        string
	schemaNames  map[schemaKey]string
	moduleLabels map[modules.ModuleId]string
}

type obj = map[string]any

func (b *builder) build() obj {
	b.collectLabelsAndNames()

	schemas := make(obj)
	for _, unit := range b.reg.Ordered() {
		for _, item := range unit.Program.Items {
			switch decl := item.(type) {
			case *ast.TypeDecl:
				if key, ok := b.schemaRef(unit.Id, decl.Name); ok {
					schemas[key] = b.schemaForTypeDecl(unit, decl)
				}
			case *ast.EnumDecl:
				if key, ok := b.schemaRef(unit.Id, decl.Name); ok {
					schemas[key] = b.schemaForEnumDecl(unit, decl)
				}
			}
		}
	}
	b.insertErrorSchemas(schemas)

	paths, tags := b.collectPathsAndTags()

	root := obj{
		"openapi":    "3.0.0",
		"info":       obj{"title": b.title, "version": "0.1.0"},
		"paths":      paths,
		"components": obj{"schemas": schemas},
	}
	if len(tags) > 0 {
		root["tags"] = tags
	}
	return root
}

func (b *builder) collectLabelsAndNames() {
	for _, unit := range b.reg.Ordered() {
		label := strings.TrimSuffix(filepath.Base(unit.Path), filepath.Ext(unit.Path))
		b.moduleLabels[unit.Id] = label
		for _, item := range unit.Program.Items {
			switch decl := item.(type) {
			case *ast.TypeDecl:
				b.schemaNames[schemaKey{unit.Id, decl.Name}] = schemaName(unit.Id, decl.Name)
			case *ast.EnumDecl:
				b.schemaNames[schemaKey{unit.Id, decl.Name}] = schemaName(unit.Id, decl.Name)
			}
		}
	}
}

func schemaName(id modules.ModuleId, name string) string {
	return "m" + strconv.Itoa(int(id)) + "_" + name
}

func (b *builder) collectPathsAndTags() (obj, []any) {
	paths := make(obj)
	tagSet := make(map[string]bool)
	var tagOrder []string

	for _, unit := range b.reg.Ordered() {
		for _, item := range unit.Program.Items {
			svc, ok := item.(*ast.ServiceDecl)
			if !ok {
				continue
			}
			if !tagSet[svc.Name] {
				tagSet[svc.Name] = true
				tagOrder = append(tagOrder, svc.Name)
			}
			for idx, route := range svc.Routes {
				full := joinPaths(svc.BasePath, route.Path)
				pathKey, params := normalizeRoutePath(full)
				entry, ok := paths[pathKey].(obj)
				if !ok {
					entry = make(obj)
					paths[pathKey] = entry
				}
				entry[strings.ToLower(route.Verb)] = b.buildOperation(unit, svc, route, idx, params)
			}
		}
	}

	tags := make([]any, 0, len(tagOrder))
	for _, name := range tagOrder {
		tags = append(tags, obj{"name": name})
	}
	return paths, tags
}

type pathParam struct {
	name string
	ty   string
}

func (b *builder) buildOperation(unit *modules.ModuleUnit, svc *ast.ServiceDecl, route *ast.RouteDecl, idx int, params []pathParam) obj {
	op := obj{
		"tags":        []any{svc.Name},
		"operationId": svc.Name + "_" + strconv.Itoa(idx),
	}

	if len(params) > 0 {
		items := make([]any, 0, len(params))
		for _, prm := range params {
			items = append(items, obj{
				"name":     prm.name,
				"in":       "path",
				"required": true,
				"schema":   b.schemaForNamedType(unit, prm.ty),
			})
		}
		op["parameters"] = items
	}

	if route.BodyType != nil {
		op["requestBody"] = obj{
			"content":  obj{"application/json": obj{"schema": b.schemaForTypeRef(unit, route.BodyType)}},
			"required": !route.BodyType.IsOptional(),
		}
	}

	okSchema := b.schemaForResponse(unit, route.RetType)
	op["responses"] = obj{
		"200": obj{
			"description": "OK",
			"content":     obj{"application/json": obj{"schema": okSchema}},
		},
		"default": obj{
			"description": "Error",
			"content":     obj{"application/json": obj{"schema": obj{"$ref": "#/components/schemas/Error"}}},
		},
	}
	return op
}

func (b *builder) schemaForResponse(unit *modules.ModuleUnit, ty *ast.TypeRef) any {
	if ty != nil && ty.Kind == ast.TRResult {
		return b.schemaForTypeRef(unit, ty.Ok)
	}
	return b.schemaForTypeRef(unit, ty)
}

func (b *builder) schemaForTypeRef(unit *modules.ModuleUnit, ty *ast.TypeRef) any {
	if ty == nil {
		return obj{"type": "string"}
	}
	switch ty.Kind {
	case ast.TROptional:
		return makeNullable(b.schemaForTypeRef(unit, ty.Inner))
	case ast.TRResult:
		return b.schemaForTypeRef(unit, ty.Ok)
	case ast.TRGeneric:
		switch {
		case ty.Base == "List" && len(ty.Args) == 1:
			return obj{"type": "array", "items": b.schemaForTypeRef(unit, ty.Args[0])}
		case ty.Base == "Map" && len(ty.Args) == 2:
			return obj{"type": "object", "additionalProperties": b.schemaForTypeRef(unit, ty.Args[1])}
		case ty.Base == "Option" && len(ty.Args) == 1:
			return makeNullable(b.schemaForTypeRef(unit, ty.Args[0]))
		case ty.Base == "Result" && len(ty.Args) > 0:
			return b.schemaForTypeRef(unit, ty.Args[0])
		default:
			return b.schemaForNamedType(unit, ty.Base)
		}
	case ast.TRRefined:
		schema := b.schemaForNamedType(unit, ty.RefinedBase)
		return applyConstraints(schema, refinedConstraints(ty.RefinedBase, ty.RefinedArgs))
	default:
		return b.schemaForNamedType(unit, ty.Name)
	}
}

func (b *builder) schemaForNamedType(unit *modules.ModuleUnit, name string) any {
	if schema, ok := primitiveSchema(name); ok {
		return schema
	}
	if moduleId, item, ok := b.resolveNamedType(unit, name); ok {
		if key, ok := b.schemaRef(moduleId, item); ok {
			return obj{"$ref": "#/components/schemas/" + key}
		}
	}
	return obj{"type": "string", "description": "unknown type " + name}
}

func (b *builder) resolveNamedType(unit *modules.ModuleUnit, name string) (modules.ModuleId, string, bool) {
	if isBuiltinTypeName(name) {
		return 0, "", false
	}
	if mod, item, ok := strings.Cut(name, "."); ok && mod != "" && item != "" && !strings.Contains(item, ".") {
		if link, ok := unit.Modules[mod]; ok {
			return link.Id, item, true
		}
		return 0, "", false
	}
	if link, ok := unit.ImportItems[name]; ok {
		return link.Id, name, true
	}
	return unit.Id, name, true
}

func (b *builder) schemaRef(id modules.ModuleId, name string) (string, bool) {
	key, ok := b.schemaNames[schemaKey{id, name}]
	return key, ok
}

func (b *builder) schemaForTypeDecl(unit *modules.ModuleUnit, decl *ast.TypeDecl) obj {
	properties := make(obj)
	var required []any
	for _, f := range decl.Fields {
		properties[f.Name] = b.schemaForTypeRef(unit, f.Type)
		if f.Default == nil && !f.Type.IsOptional() {
			required = append(required, f.Name)
		}
	}
	schema := obj{
		"type":       "object",
		"title":      b.moduleLabels[unit.Id] + "." + decl.Name,
		"properties": properties,
	}
	if decl.Doc != "" {
		schema["description"] = decl.Doc
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (b *builder) schemaForEnumDecl(unit *modules.ModuleUnit, decl *ast.EnumDecl) obj {
	variants := make([]any, 0, len(decl.Variants))
	for _, v := range decl.Variants {
		variants = append(variants, b.schemaForEnumVariant(unit, v.Name, v.Payload))
	}
	schema := obj{
		"title": b.moduleLabels[unit.Id] + "." + decl.Name,
		"oneOf": variants,
	}
	if decl.Doc != "" {
		schema["description"] = decl.Doc
	}
	return schema
}

func (b *builder) schemaForEnumVariant(unit *modules.ModuleUnit, name string, payload []*ast.TypeRef) obj {
	properties := obj{
		"type": obj{"type": "string", "enum": []any{name}},
	}
	required := []any{"type"}
	if len(payload) > 0 {
		var data any
		if len(payload) == 1 {
			data = b.schemaForTypeRef(unit, payload[0])
		} else {
			choices := make([]any, 0, len(payload))
			for _, ty := range payload {
				choices = append(choices, b.schemaForTypeRef(unit, ty))
			}
			data = obj{
				"type":     "array",
				"items":    obj{"oneOf": choices},
				"minItems": len(payload),
				"maxItems": len(payload),
			}
		}
		properties["data"] = data
		required = append(required, "data")
	}
	return obj{"type": "object", "properties": properties, "required": required}
}

// insertErrorSchemas adds the wire error envelope used by every route's
// default response.
func (b *builder) insertErrorSchemas(schemas obj) {
	if _, ok := schemas["Error"]; ok {
		return
	}
	stringSchema := obj{"type": "string"}
	schemas["ValidationField"] = obj{
		"type": "object",
		"properties": obj{
			"path":    stringSchema,
			"code":    stringSchema,
			"message": stringSchema,
		},
		"required": []any{"path", "code", "message"},
	}
	schemas["Error"] = obj{
		"type": "object",
		"properties": obj{
			"error": obj{
				"type": "object",
				"properties": obj{
					"code":    stringSchema,
					"message": stringSchema,
					"fields": obj{
						"type":  "array",
						"items": obj{"$ref": "#/components/schemas/ValidationField"},
					},
				},
				"required": []any{"code", "message"},
			},
		},
		"required": []any{"error"},
	}
}

func joinPaths(base, route string) string {
	baseTrim := strings.TrimRight(base, "/")
	routeTrim := strings.TrimLeft(route, "/")
	out := baseTrim
	if routeTrim != "" {
		out += "/" + routeTrim
	}
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out
}

// normalizeRoutePath strips {name:Type} annotations down to OpenAPI's
// {name} while collecting the typed parameters.
func normalizeRoutePath(path string) (string, []pathParam) {
	var out strings.Builder
	var params []pathParam
	i := 0
	for i < len(path) {
		if path[i] != '{' {
			out.WriteByte(path[i])
			i++
			continue
		}
		end := strings.IndexByte(path[i:], '}')
		if end < 0 {
			out.WriteString(path[i:])
			break
		}
		inner := path[i+1 : i+end]
		name, ty, _ := strings.Cut(inner, ":")
		name = strings.TrimSpace(name)
		ty = strings.TrimSpace(ty)
		if name != "" {
			params = append(params, pathParam{name: name, ty: defaultType(ty)})
			out.WriteString("{" + name + "}")
		} else {
			out.WriteString("{" + strings.TrimSpace(inner) + "}")
		}
		i += end + 1
	}
	return out.String(), params
}

func defaultType(ty string) string {
	if ty == "" {
		return "String"
	}
	return ty
}

func isBuiltinTypeName(name string) bool {
	switch name {
	case "Int", "Float", "Bool", "String", "Id", "Email", "Bytes":
		return true
	}
	return false
}

func primitiveSchema(name string) (obj, bool) {
	switch name {
	case "Int":
		return obj{"type": "integer", "format": "int64"}, true
	case "Float":
		return obj{"type": "number", "format": "double"}, true
	case "Bool":
		return obj{"type": "boolean"}, true
	case "String", "Id":
		return obj{"type": "string"}, true
	case "Email":
		return obj{"type": "string", "format": "email"}, true
	case "Bytes":
		return obj{"type": "string", "format": "byte"}, true
	}
	return nil, false
}

func makeNullable(schema any) any {
	m, ok := schema.(obj)
	if !ok {
		return schema
	}
	if _, hasRef := m["$ref"]; hasRef {
		return obj{"allOf": []any{m}, "nullable": true}
	}
	m["nullable"] = true
	return m
}

func applyConstraints(schema any, constraints obj) any {
	if len(constraints) == 0 {
		return schema
	}
	m, ok := schema.(obj)
	if !ok {
		return schema
	}
	if _, hasRef := m["$ref"]; hasRef {
		out := obj{"allOf": []any{m}}
		for k, v := range constraints {
			out[k] = v
		}
		return out
	}
	for k, v := range constraints {
		m[k] = v
	}
	return m
}

// refinedConstraints maps a closed lo..hi refinement onto the matching
// OpenAPI bounds: length for text-like bases, magnitude for numerics.
func refinedConstraints(base string, args []ast.Expr) obj {
	lo, hi, ok := extractRange(args)
	if !ok {
		return nil
	}
	switch base {
	case "String", "Id", "Email", "Bytes":
		return obj{"minLength": lo, "maxLength": hi}
	case "Int", "Float":
		return obj{"minimum": lo, "maximum": hi}
	}
	return nil
}

func extractRange(args []ast.Expr) (float64, float64, bool) {
	if len(args) == 0 {
		return 0, 0, false
	}
	bin, ok := args[0].(*ast.Binary)
	if !ok || bin.Op != ".." {
		return 0, 0, false
	}
	lo, ok := literalNumber(bin.Left)
	if !ok {
		return 0, 0, false
	}
	hi, ok := literalNumber(bin.Right)
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

func literalNumber(e ast.Expr) (float64, bool) {
	switch n := e.(type) {
	case *ast.IntLit:
		return float64(n.Value), true
	case *ast.FloatLit:
		return n.Value, true
	}
	return 0, false
}
