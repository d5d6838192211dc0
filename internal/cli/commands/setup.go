package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/quill/internal/bootstrap"
	"github.com/leapstack-labs/quill/internal/cli/config"
	"github.com/leapstack-labs/quill/internal/cli/output"
	"github.com/leapstack-labs/quill/pkg/directive"
	"github.com/leapstack-labs/quill/pkg/types"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Project  *bootstrap.Project
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with an open project and a
// renderer. The cleanup function must be called, typically via defer.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutProject(cmd)

	p, err := bootstrap.Open(&cmdCtx.Cfg.EngineConfig, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Project = p

	cleanup := func() {
		if err := p.Close(); err != nil {
			cmdCtx.Logger.Warn("close project", "error", err)
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutProject creates a CommandContext without opening
// the template sources.
func NewCommandContextWithoutProject(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	mode := output.Mode(cfg.OutputFormat)
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}
}

// getConfig returns the loaded configuration, or the defaults when the
// command runs without the root command's setup.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// readValuesFile reads a YAML mapping of names to values.
func readValuesFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return values, nil
}

// splitAssignment splits "name=value".
func splitAssignment(s string) (name, value string, err error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", s)
	}
	return name, value, nil
}

// bindParams builds render parameters from a values file and name=value
// assignments. Assignments win over the file. Values of declared
// parameters are converted to their types; text values are parsed.
func bindParams(declared []directive.Variable, file string, assignments []string) (map[string]any, error) {
	typeOf := make(map[string]*types.Type, len(declared))
	for _, p := range declared {
		typeOf[p.Name] = p.Type
	}

	params := map[string]any{}
	if file != "" {
		values, err := readValuesFile(file)
		if err != nil {
			return nil, err
		}
		for name, v := range values {
			if t, ok := typeOf[name]; ok {
				cv, err := types.Convert(v, t)
				if err != nil {
					return nil, fmt.Errorf("parameter %s: %w", name, err)
				}
				v = cv
			}
			params[name] = v
		}
	}

	for _, a := range assignments {
		name, text, err := splitAssignment(a)
		if err != nil {
			return nil, err
		}
		t, ok := typeOf[name]
		if !ok {
			params[name] = text
			continue
		}
		v, err := types.ParseValue(text, t)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}

// typedVar is a variable given as "name:Type=value" or "name=value".
type typedVar struct {
	Name  string
	Type  *types.Type
	Value any
}

// parseTypedVar parses "name:Type=value". Without a type the value is a
// string.
func parseTypedVar(s string) (typedVar, error) {
	lhs, text, err := splitAssignment(s)
	if err != nil {
		return typedVar{}, err
	}
	name, typeName, hasType := strings.Cut(lhs, ":")
	v := typedVar{Name: strings.TrimSpace(name), Type: types.String}
	if hasType {
		t, err := types.Parse(strings.TrimSpace(typeName))
		if err != nil {
			return typedVar{}, fmt.Errorf("variable %s: %w", v.Name, err)
		}
		v.Type = t
	}
	v.Value, err = types.ParseValue(text, v.Type)
	if err != nil {
		return typedVar{}, fmt.Errorf("variable %s: %w", v.Name, err)
	}
	return v, nil
}

// bindVars declares and binds the variables of an expression from a
// values file and typed assignments. File values are typed by their YAML
// form.
func bindVars(file string, assignments []string) (map[string]*types.Type, map[string]any, error) {
	decl := map[string]*types.Type{}
	values := map[string]any{}
	if file != "" {
		fileValues, err := readValuesFile(file)
		if err != nil {
			return nil, nil, err
		}
		for name, v := range fileValues {
			decl[name] = types.Any
			if v != nil {
				decl[name] = types.Of(v)
			}
			values[name] = v
		}
	}
	for _, a := range assignments {
		v, err := parseTypedVar(a)
		if err != nil {
			return nil, nil, err
		}
		decl[v.Name] = v.Type
		values[v.Name] = v.Value
	}
	return decl, values, nil
}
