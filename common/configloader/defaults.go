package configloader

import "strings"

// Defaults maps dotted keys ("upstream.depth.url") to default values.
// Every key a service reads from the environment needs a default, since
// viper only binds env variables for keys it already knows.
type Defaults map[string]interface{}

// Set records a default for key.
func (d Defaults) Set(key string, v interface{}) { d[key] = v }

// Under returns a setter that prefixes every key with prefix and a dot.
func (d Defaults) Under(prefix string) func(key string, v interface{}) {
	prefix = strings.TrimSuffix(prefix, ".") + "."
	return func(key string, v interface{}) { d[prefix+key] = v }
}
