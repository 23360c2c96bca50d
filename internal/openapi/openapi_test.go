package openapi

import (
	"encoding/json"
	"testing"

	"github.com/fuselang/fuse/internal/modules"
)

func generate(t *testing.T, src string) map[string]any {
	t.Helper()
	reg, diags := modules.Load("/proj/shop.fuse", src)
	if diags.HasErrors() {
		t.Fatalf("load error: %v", diags.All())
	}
	doc, err := Generate(reg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		t.Fatalf("output not JSON: %v\n%s", err, doc)
	}
	return out
}

const shopSrc = "type Item:\n" +
	"  name: String\n" +
	"  price: Int\n" +
	"  note: String?\n" +
	"service Shop \"/api\":\n" +
	"  get \"/items/{id:Id}\" -> Item!NotFound:\n" +
	"    return NotFound(message=\"no\")\n" +
	"  post \"/items\"(Item) -> Item:\n" +
	"    return body\n"

func TestDocumentShape(t *testing.T) {
	doc := generate(t, shopSrc)
	if doc["openapi"] != "3.0.0" {
		t.Errorf("version: %v", doc["openapi"])
	}
	info := doc["info"].(map[string]any)
	if info["title"] != "shop" {
		t.Errorf("title from file stem: %v", info["title"])
	}
}

func TestPathsAndOperations(t *testing.T) {
	doc := generate(t, shopSrc)
	paths := doc["paths"].(map[string]any)

	get, ok := paths["/api/items/{id}"].(map[string]any)
	if !ok {
		t.Fatalf("typed path segment not normalized: %v", keys(paths))
	}
	op := get["get"].(map[string]any)
	if op["operationId"] != "Shop_0" {
		t.Errorf("operationId: %v", op["operationId"])
	}
	params := op["parameters"].([]any)
	p0 := params[0].(map[string]any)
	if p0["name"] != "id" || p0["in"] != "path" || p0["required"] != true {
		t.Errorf("param: %v", p0)
	}

	post := paths["/api/items"].(map[string]any)["post"].(map[string]any)
	rb := post["requestBody"].(map[string]any)
	if rb["required"] != true {
		t.Errorf("request body: %v", rb)
	}
}

func TestSchemasAndRequired(t *testing.T) {
	doc := generate(t, shopSrc)
	schemas := doc["components"].(map[string]any)["schemas"].(map[string]any)

	item, ok := schemas["m0_Item"].(map[string]any)
	if !ok {
		t.Fatalf("schema keys: %v", keys(schemas))
	}
	props := item["properties"].(map[string]any)
	if _, ok := props["note"]; !ok {
		t.Error("note property missing")
	}
	required := item["required"].([]any)
	if len(required) != 2 {
		t.Errorf("required: %v (note is optional)", required)
	}

	// The error-envelope schemas are always present.
	if _, ok := schemas["Error"]; !ok {
		t.Error("Error schema missing")
	}
	if _, ok := schemas["ValidationField"]; !ok {
		t.Error("ValidationField schema missing")
	}
}

// A Result return type documents only its Ok arm under 200; errors go
// through the shared default response.
func TestResultResponseSchema(t *testing.T) {
	doc := generate(t, shopSrc)
	paths := doc["paths"].(map[string]any)
	op := paths["/api/items/{id}"].(map[string]any)["get"].(map[string]any)
	responses := op["responses"].(map[string]any)
	ok200 := responses["200"].(map[string]any)
	schema := ok200["content"].(map[string]any)["application/json"].(map[string]any)["schema"].(map[string]any)
	if schema["$ref"] != "#/components/schemas/m0_Item" {
		t.Errorf("200 schema: %v", schema)
	}
	def := responses["default"].(map[string]any)
	errSchema := def["content"].(map[string]any)["application/json"].(map[string]any)["schema"].(map[string]any)
	if errSchema["$ref"] != "#/components/schemas/Error" {
		t.Errorf("default schema: %v", errSchema)
	}
}

func TestEnumSchema(t *testing.T) {
	src := "enum Status:\n  case Active\n  case Blocked(String)\n" +
		"service S \"/\":\n  get \"/s\" -> Status:\n    return Status.Active\n"
	doc := generate(t, src)
	schemas := doc["components"].(map[string]any)["schemas"].(map[string]any)
	status := schemas["m0_Status"].(map[string]any)
	variants := status["oneOf"].([]any)
	if len(variants) != 2 {
		t.Fatalf("variants: %d", len(variants))
	}
	blocked := variants[1].(map[string]any)
	props := blocked["properties"].(map[string]any)
	if _, ok := props["data"]; !ok {
		t.Error("payload variant needs a data property")
	}
}

func TestRefinedConstraints(t *testing.T) {
	src := "type Signup:\n  age: Int(13..120)\n  name: String(1..64)\n" +
		"service S \"/\":\n  post \"/signup\"(Signup) -> Signup:\n    return body\n"
	doc := generate(t, src)
	schemas := doc["components"].(map[string]any)["schemas"].(map[string]any)
	signup := schemas["m0_Signup"].(map[string]any)
	props := signup["properties"].(map[string]any)
	age := props["age"].(map[string]any)
	if age["minimum"] != float64(13) || age["maximum"] != float64(120) {
		t.Errorf("age bounds: %v", age)
	}
	name := props["name"].(map[string]any)
	if name["minLength"] != float64(1) || name["maxLength"] != float64(64) {
		t.Errorf("name bounds: %v", name)
	}
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
