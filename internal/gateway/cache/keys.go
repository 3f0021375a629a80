package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const keySeparator = "|"

// Key builds the cache key for a domain and its parameters.
//
// Parameters are sorted by name and nil or empty-string values are dropped,
// so two calls with the same effective parameters produce the same key.
// If a value cannot be serialized (cycles, channels, funcs) the key gets a
// timestamp and random suffix instead: the entry is stored but never hit again.
func (c *RequestCache) Key(domain string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for name, v := range params {
		if isEmptyParam(v) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		encoded, err := json.Marshal(params[name])
		if err != nil {
			c.log.WithField("domain", domain).WithError(err).
				Warn("[CACHE] could not serialize key parameters, using a one-off key")
			return fmt.Sprintf("%s:%d:%s", domain, c.now().UnixNano(), uuid.NewString())
		}
		parts = append(parts, name+":"+string(encoded))
	}

	return domain + ":" + strings.Join(parts, keySeparator)
}

func isEmptyParam(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
