package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spboyer/textplay/schemas"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

var printer = message.NewPrinter(language.English)

var (
	configSchema = sync.OnceValue(func() *jsonschema.Schema {
		return compile("config.schema.json", schemas.ConfigSchemaJSON)
	})
	scriptSchema = sync.OnceValue(func() *jsonschema.Schema {
		return compile("script.schema.json", schemas.ScriptSchemaJSON)
	})
)

// compile panics on error; the schemas are embedded at build time.
func compile(name, raw string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("embedded %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("embedded %s: %v", name, err))
	}
	return c.MustCompile(name)
}

// ValidateConfigFile checks a project config file. When the config names a
// scripted game the script is checked as well; its problems are keyed by the
// script path as written in the config.
func ValidateConfigFile(configPath string) (configErrs []string, scriptErrs map[string][]string, err error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config file: %w", err)
	}
	configErrs = ValidateConfigBytes(data)

	script := scriptReference(data)
	if script == "" {
		return configErrs, nil, nil
	}

	resolved := script
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(configPath), resolved)
	}
	var problems []string
	if raw, readErr := os.ReadFile(resolved); readErr != nil {
		problems = []string{fmt.Sprintf("cannot read script: %v", readErr)}
	} else {
		problems = ValidateScriptBytes(raw)
	}

	scriptErrs = map[string][]string{}
	if len(problems) > 0 {
		scriptErrs[script] = problems
	}
	return configErrs, scriptErrs, nil
}

// scriptReference returns environment.script from a config document, or ""
// when the document does not parse or names no script.
func scriptReference(data []byte) string {
	var doc struct {
		Environment struct {
			Script string `yaml:"script"`
		} `yaml:"environment"`
	}
	if yaml.Unmarshal(data, &doc) != nil {
		return ""
	}
	return doc.Environment.Script
}

// ValidateConfigBytes checks a .textplay.yaml document.
func ValidateConfigBytes(data []byte) []string {
	return check(configSchema(), data)
}

// ValidateScriptBytes checks a scripted game document.
func ValidateScriptBytes(data []byte) []string {
	return check(scriptSchema(), data)
}

// check decodes YAML and validates it, returning one "location: message"
// string per failing leaf, sorted by location.
func check(schema *jsonschema.Schema, data []byte) []string {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return []string{fmt.Sprintf("YAML parse error: %v", err)}
	}
	// The schema and the instance must agree on number types.
	doc, err := normalize(doc)
	if err != nil {
		return []string{fmt.Sprintf("YAML parse error: %v", err)}
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var out []string
	leaves(ve, func(loc []string, msg string) {
		out = append(out, "/"+strings.Join(loc, "/")+": "+msg)
	})
	slices.Sort(out)
	return slices.Compact(out)
}

func leaves(ve *jsonschema.ValidationError, emit func(loc []string, msg string)) {
	if len(ve.Causes) == 0 {
		emit(ve.InstanceLocation, ve.ErrorKind.LocalizedString(printer))
		return
	}
	for _, c := range ve.Causes {
		leaves(c, emit)
	}
}

// normalize round-trips a YAML value through encoding/json so it has the
// shape jsonschema expects from a JSON decoder.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
}
