package vars

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"
)

// Namespaces exposed to templates.
const (
	NamespaceOS        = "os"
	NamespaceUser      = "user"
	NamespaceEnv       = "env"
	NamespaceVariables = "variables"
)

// TemplateError is returned when a template references an undefined
// variable or cannot be parsed.
type TemplateError struct {
	// Template is the source string that failed to render.
	Template string

	// Err is the underlying parse or execution error.
	Err error
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("failed to render %q: %v", e.Template, e.Err)
}

// Unwrap returns the underlying error.
func (e *TemplateError) Unwrap() error {
	return e.Err
}

// Context is an immutable, namespaced variable environment used to render
// templated string fields. Every mutation-like method returns a new Context.
type Context struct {
	data map[string]map[string]string
}

// Option customises how a Context collects its built-in facts.
type Option func(*options)

type options struct {
	user map[string]string
	env  map[string]string
}

// WithUserFacts replaces the user.* facts collected from the host.
func WithUserFacts(facts map[string]string) Option {
	return func(o *options) {
		o.user = facts
	}
}

// WithEnvironment replaces the env.* facts collected from the process.
func WithEnvironment(env map[string]string) Option {
	return func(o *options) {
		o.env = env
	}
}

// New builds a Context. Layers are merged in increasing precedence:
// platform facts, global variables, then manifest-local variables.
func New(platform Platform, global, local map[string]string, opts ...Option) *Context {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.user == nil {
		o.user = userFacts()
	}
	if o.env == nil {
		o.env = envFacts()
	}

	variables := make(map[string]string, len(global)+len(local))
	maps.Copy(variables, global)
	maps.Copy(variables, local)

	return &Context{
		data: map[string]map[string]string{
			NamespaceOS:        platform.facts(),
			NamespaceUser:      maps.Clone(o.user),
			NamespaceEnv:       maps.Clone(o.env),
			NamespaceVariables: variables,
		},
	}
}

// WithLocal returns a new Context with local layered over the receiver's
// variables. The receiver is left untouched.
func (c *Context) WithLocal(local map[string]string) *Context {
	data := make(map[string]map[string]string, len(c.data))
	for ns, values := range c.data {
		data[ns] = maps.Clone(values)
	}
	maps.Copy(data[NamespaceVariables], local)
	return &Context{data: data}
}

// Lookup returns the value for a dotted name such as "os.family" or
// "variables.editor".
func (c *Context) Lookup(name string) (string, bool) {
	ns, key, ok := strings.Cut(name, ".")
	if !ok {
		return "", false
	}
	values, ok := c.data[ns]
	if !ok {
		return "", false
	}
	value, ok := values[key]
	return value, ok
}

// Keys returns all dotted names known to the context, sorted.
func (c *Context) Keys() []string {
	keys := make([]string, 0)
	for ns, values := range c.data {
		for key := range values {
			keys = append(keys, ns+"."+key)
		}
	}
	slices.Sort(keys)
	return keys
}

// Render renders a template string against the context. Rendering is
// strict: any undefined variable or syntax error yields a *TemplateError.
func (c *Context) Render(tmpl string) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("value").
		Option("missingkey=error").
		Funcs(c.funcs()).
		Parse(tmpl)
	if err != nil {
		return "", &TemplateError{Template: tmpl, Err: err}
	}

	var sb strings.Builder
	if err := t.Execute(&sb, c.tree()); err != nil {
		return "", &TemplateError{Template: tmpl, Err: err}
	}

	return sb.String(), nil
}

// RenderAll renders every template in order, stopping at the first error.
func (c *Context) RenderAll(tmpls []string) ([]string, error) {
	out := make([]string, 0, len(tmpls))
	for _, tmpl := range tmpls {
		rendered, err := c.Render(tmpl)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
	}
	return out, nil
}

func (c *Context) tree() map[string]any {
	tree := make(map[string]any, len(c.data))
	for ns, values := range c.data {
		tree[ns] = values
	}
	return tree
}

func (c *Context) funcs() template.FuncMap {
	return template.FuncMap{
		// lookup is the only way to render with a fallback value.
		"lookup": func(name, fallback string) string {
			if value, ok := c.Lookup(name); ok {
				return value
			}
			return fallback
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
		"trim":  strings.TrimSpace,
	}
}
