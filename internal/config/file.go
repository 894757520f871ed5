package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
)

// PathFromArgs extracts the --config value before kong runs, so the file can
// be installed as a resolver on the parser itself. Falls back to the
// ORD_PROVIDER_CONFIG environment variable.
func PathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		switch a := args[i]; {
		case a == "--config" || a == "-c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		case strings.HasPrefix(a, "-c="):
			return strings.TrimPrefix(a, "-c=")
		}
	}
	return os.Getenv("ORD_PROVIDER_CONFIG")
}

// YAMLResolver loads a flat YAML mapping of flag names to values and serves
// it as a kong resolver. Resolver values rank above built-in defaults and
// below environment variables and explicit flags, which is exactly the
// pre-fill semantic the --config flag promises. ${VAR} references in the
// file are expanded from the environment before parsing.
func YAMLResolver(path string) (kong.Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.ConfigError("cannot read config file").
			WithTarget(path).Fatal().Build()
	}

	var values map[string]any
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &values); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "cannot parse config file").
			WithTarget(path).Fatal().Build()
	}

	var resolver kong.ResolverFunc = func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		v, ok := values[flag.Name]
		if !ok {
			return nil, nil
		}
		// Lists are joined to the comma form every kong slice mapper accepts.
		if list, isList := v.([]any); isList {
			parts := make([]string, 0, len(list))
			for _, item := range list {
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, ","), nil
		}
		return v, nil
	}
	return resolver, nil
}
