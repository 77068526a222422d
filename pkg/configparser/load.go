package configparser

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNoFilePath = errors.New("no file path provided")

// LoadAndParseYaml loads the YAML file into the environment and then fills cfg from
// its `env` / `default` struct tags. A missing file is not an error: environment
// variables and defaults still apply.
func LoadAndParseYaml(filepath string, cfg any) error {
	if err := LoadYamlFile(filepath); err != nil && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, ErrNoFilePath) {
		return err
	}
	return ParseEnv(cfg)
}

// LoadYamlFile reads a YAML file and exports its leaves as environment variables.
// Nested keys are joined with "_" and upper-cased (relay.port -> RELAY_PORT).
// Variables that are already set win over the file.
// Values of the form ${VAR:-default} are resolved against the environment.
func LoadYamlFile(filepath string) error {
	if filepath == "" {
		return ErrNoFilePath
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("could not open YAML file: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("error reading YAML file: %w", err)
	}

	vars := make(map[string]string)
	flatten(nil, doc, vars)

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, expand(vars[key])); err != nil {
			return fmt.Errorf("could not set env var %s: %w", key, err)
		}
	}

	return nil
}

func flatten(prefix []string, node map[string]any, out map[string]string) {
	for key, value := range node {
		path := append(append([]string{}, prefix...), key)

		switch v := value.(type) {
		case map[string]any:
			flatten(path, v, out)
		case nil:
			// "key:" with no value does not describe a variable
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, fmt.Sprint(item))
			}
			out[strings.ToUpper(strings.Join(path, "_"))] = strings.Join(items, ",")
		default:
			out[strings.ToUpper(strings.Join(path, "_"))] = fmt.Sprint(v)
		}
	}
}

// expand resolves the ${VAR:-default} syntax.
func expand(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") || !strings.Contains(value, ":-") {
		return value
	}

	inner := value[2 : len(value)-1]
	parts := strings.SplitN(inner, ":-", 2)
	if env := os.Getenv(strings.TrimSpace(parts[0])); env != "" {
		return env
	}
	return strings.TrimSpace(parts[1])
}
