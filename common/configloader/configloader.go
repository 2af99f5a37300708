package configloader

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type options struct {
	envPrefix string
	defaults  Defaults
}

// Option customises Load.
type Option func(*options)

// WithEnvPrefix maps nested keys to PREFIX_SECTION_KEY variables, e.g.
// FEEDBRIDGE_UPSTREAM_DEPTH_URL for upstream.depth.url.
func WithEnvPrefix(prefix string) Option { return func(o *options) { o.envPrefix = prefix } }

// WithDefaults registers default values. Later calls add to earlier ones.
func WithDefaults(d Defaults) Option {
	return func(o *options) {
		for k, v := range d {
			o.defaults[k] = v
		}
	}
}

// Load fills cfgPtr from the defaults, an optional YAML file at path and
// the environment, in that order of precedence from lowest to highest.
// cfgPtr is validated when it has a Validate() error method.
func Load(path string, cfgPtr interface{}, opts ...Option) error {
	o := options{defaults: Defaults{}}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	for key, val := range o.defaults {
		v.SetDefault(key, val)
	}
	if o.envPrefix != "" {
		v.SetEnvPrefix(o.envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("configloader: read config %q: %w", path, err)
		}
	}

	if err := decode(v.AllSettings(), cfgPtr); err != nil {
		return fmt.Errorf("configloader: decode: %w", err)
	}

	if c, ok := cfgPtr.(interface{ Validate() error }); ok {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("configloader: invalid config: %w", err)
		}
	}
	return nil
}
