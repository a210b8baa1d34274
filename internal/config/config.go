package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"etl-notifier/internal/model"
)

// ErrInvalidConfig marks every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid config")

type NotificationConfig struct {
	Type       string        `yaml:"type"`        // teams | webhook
	WebhookURL string        `yaml:"webhook_url"` // usually ${ETL_TEAMS_WEBHOOK_URL}
	Timeout    time.Duration `yaml:"timeout"`     // request timeout, 0 = settings default
	UserAgent  string        `yaml:"user_agent"`
}

// SourceConfig is one entry of the sources section. Everything but type is handed to the
// source implementation untouched (connection_string, driver, msi_client_id, ...).
type SourceConfig struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:",inline"`
}

// String returns the named parameter as text, or "" when it is absent.
func (s SourceConfig) String(key string) string {
	v, ok := s.Params[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

type Query struct {
	Name                string         `yaml:"-"`
	Source              string         `yaml:"source"`
	Query               map[string]any `yaml:"query"`                 // opaque to the runner, e.g. {sql: "..."}
	MessageSingle       string         `yaml:"message_single"`        // one record
	MessageMultiple     string         `yaml:"message_multiple"`      // intro for 2+ records
	MessageMultipleLine string         `yaml:"message_multiple_line"` // optional per-record line
	ConfirmationPolicy  string         `yaml:"confirmation_policy"`   // staggered | immediate | per_record
	Policy              model.Policy   `yaml:"-"`                     // parsed ConfirmationPolicy

	present map[string]bool
}

// Queries keeps the order the queries were declared in.
type Queries []Query

func (qs *Queries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: 'queries' must be a mapping", ErrInvalidConfig)
	}
	out := make(Queries, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, body := node.Content[i].Value, node.Content[i+1]
		q := Query{Name: name, present: map[string]bool{}}
		if body.Kind == yaml.MappingNode {
			for j := 0; j+1 < len(body.Content); j += 2 {
				q.present[body.Content[j].Value] = true
			}
			if err := body.Decode(&q); err != nil {
				return fmt.Errorf("query %q: %w", name, err)
			}
		}
		out = append(out, q)
	}
	*qs = out
	return nil
}

type Config struct {
	Notification NotificationConfig      `yaml:"notification"`
	Sources      map[string]SourceConfig `yaml:"sources"`
	Queries      Queries                 `yaml:"queries"`
}

// Query returns the query with the given name.
func (c *Config) Query(name string) (Query, bool) {
	for _, q := range c.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return Query{}, false
}

// Load reads the YAML file at path, resolves ${VAR} references in every string value and
// validates the result. An unset variable fails the load.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: configuration must be a mapping", ErrInvalidConfig)
	}
	root := doc.Content[0]

	sections := map[string]bool{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		sections[root.Content[i].Value] = true
	}
	for _, s := range []string{"notification", "sources", "queries"} {
		if !sections[s] {
			return nil, fmt.Errorf("%w: configuration must contain '%s' section", ErrInvalidConfig, s)
		}
	}

	if err := interpolate(root); err != nil {
		return nil, err
	}

	var c Config
	if err := root.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Notification.Type == "" {
		fail("notification section must specify a 'type'")
	}
	for name, s := range c.Sources {
		if s.Type == "" {
			fail("source '%s' must specify a 'type'", name)
		}
	}
	for i := range c.Queries {
		q := &c.Queries[i]
		if !q.present["source"] {
			fail("query '%s' must specify a 'source'", q.Name)
		} else if _, ok := c.Sources[q.Source]; !ok {
			fail("query '%s' references undefined source '%s'", q.Name, q.Source)
		}
		if !q.present["query"] {
			fail("query '%s' must contain a 'query' section", q.Name)
		}
		if !q.present["message_single"] {
			fail("query '%s' must specify 'message_single'", q.Name)
		}
		if !q.present["message_multiple"] {
			fail("query '%s' must specify 'message_multiple'", q.Name)
		}
		p, err := model.ParsePolicy(q.ConfirmationPolicy)
		if err != nil {
			fail("query '%s': %v", q.Name, err)
		}
		q.Policy = p
	}
	return errors.Join(errs...)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolate replaces ${VAR} in string scalars in place.
func interpolate(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() != "!!str" || !envRef.MatchString(n.Value) {
			return nil
		}
		var missing []string
		n.Value = envRef.ReplaceAllStringFunc(n.Value, func(ref string) string {
			name := envRef.FindStringSubmatch(ref)[1]
			v, ok := os.LookupEnv(name)
			if !ok {
				missing = append(missing, name)
			}
			return v
		})
		if len(missing) > 0 {
			return fmt.Errorf("%w: environment variable not set: %s", ErrInvalidConfig, missing[0])
		}
		// let the resolved value pick its own type (ports, booleans)
		if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) == 0 {
			n.Tag = ""
		}
		return nil
	case yaml.AliasNode:
		return nil
	}
	for _, c := range n.Content {
		if err := interpolate(c); err != nil {
			return err
		}
	}
	return nil
}
