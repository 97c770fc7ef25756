// Command schema emits JSON Schema documents for the static configuration
// families, for editor tooling and pre-commit validation of game data.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"warlane/server/internal/ability"
	"warlane/server/internal/world"
)

func main() {
	outDir := flag.String("out", "schema", "output directory for the generated schemas")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("schema: %v", err)
	}

	targets := []struct {
		name  string
		value any
	}{
		{"ability", &ability.Config{}},
		{"archetype", &world.Archetype{}},
		{"wave", &world.Wave{}},
	}
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	for _, target := range targets {
		schema := reflector.Reflect(target.value)
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			log.Fatalf("schema %s: %v", target.name, err)
		}
		path := filepath.Join(*outDir, target.name+".schema.json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Fatalf("schema %s: %v", target.name, err)
		}
		fmt.Println(path)
	}
}
