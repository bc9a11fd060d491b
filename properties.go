/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

/**
Property resolver used by the placeholder configurer. Resolvers are
sorted by priority, higher priority first.
*/

var PropertyResolverClass = reflect.TypeOf((*PropertyResolver)(nil)).Elem()

type PropertyResolver interface {
	Priority() int

	GetProperty(key string) (value string, ok bool)
}

const defaultPropertyResolverPriority = 100

var PropertiesClass = reflect.TypeOf((*Properties)(nil)).Elem()

type Properties interface {
	PropertyResolver

	/**
	Register additional property resolver. It would be sorted by priority.
	*/
	Register(resolver PropertyResolver)
	PropertyResolvers() []PropertyResolver

	/**
	Loads properties from a nested map, flattening keys with dots.
	*/
	LoadMap(source map[string]interface{})

	/**
	Loads properties from a YAML document.
	*/
	LoadYAML(reader io.Reader) error

	/**
	Loads properties from dotenv/key=value content.
	*/
	LoadEnv(reader io.Reader) error

	Len() int
	Keys() []string
	Map() map[string]string
	Contains(key string) bool

	/**
	Resolves through the whole resolver chain.
	*/
	Get(key string) (value string, ok bool)

	GetString(key, def string) string
	GetBool(key string, def bool) bool
	GetInt(key string, def int) int
	GetFloat(key string, def float64) float64
	GetDuration(key string, def time.Duration) time.Duration

	Set(key string, value string)
	Remove(key string) bool
	Clear()
}

/**
Scanned in New to feed the placeholder configurer: either a file path
(.yaml/.yml or dotenv syntax otherwise) or an in-memory map.
*/

var PropertySourceClass = reflect.TypeOf((*PropertySource)(nil))

type PropertySource struct {
	Path string
	Map  map[string]interface{}
}

type properties struct {
	sync.RWMutex

	priority  int
	store     map[string]string
	resolvers []PropertyResolver
}

func NewProperties() Properties {
	t := &properties{
		priority: defaultPropertyResolverPriority,
		store:    make(map[string]string),
	}
	t.Register(t)
	return t
}

func (t *properties) String() string {
	t.RLock()
	defer t.RUnlock()
	return fmt.Sprintf("Properties{priority=%d,store=%d,resolvers=%d}", t.priority, len(t.store), len(t.resolvers))
}

func (t *properties) Priority() int {
	return t.priority
}

func (t *properties) Register(resolver PropertyResolver) {
	t.Lock()
	defer t.Unlock()
	t.resolvers = append(t.resolvers, resolver)
	if len(t.resolvers) > 1 {
		sort.SliceStable(t.resolvers, func(i, j int) bool {
			return t.resolvers[i].Priority() >= t.resolvers[j].Priority()
		})
	}
}

func (t *properties) PropertyResolvers() []PropertyResolver {
	t.RLock()
	defer t.RUnlock()
	buf := make([]PropertyResolver, len(t.resolvers))
	copy(buf, t.resolvers)
	return buf
}

func (t *properties) LoadMap(source map[string]interface{}) {
	t.Lock()
	defer t.Unlock()
	t.loadMapRec(make([]byte, 0, 100), source)
}

func (t *properties) loadMapRec(stack []byte, m map[string]interface{}) {
	for k, v := range m {
		n := len(stack)
		if n > 0 {
			stack = append(stack, '.')
		}
		stack = append(stack, []byte(k)...)
		if next, ok := v.(map[string]interface{}); ok {
			t.loadMapRec(stack, next)
		} else {
			t.store[string(stack)] = fmt.Sprint(v)
		}
		stack = stack[:n]
	}
}

func (t *properties) LoadYAML(reader io.Reader) error {
	holder := make(map[string]interface{})
	if err := yaml.NewDecoder(reader).Decode(holder); err != nil {
		return errors.Wrap(err, "yaml property source parse error")
	}
	t.LoadMap(holder)
	return nil
}

func (t *properties) LoadEnv(reader io.Reader) error {
	env, err := godotenv.Parse(reader)
	if err != nil {
		return errors.Wrap(err, "env property source parse error")
	}
	t.Lock()
	defer t.Unlock()
	for k, v := range env {
		t.store[k] = v
	}
	return nil
}

func (t *properties) Len() int {
	t.RLock()
	defer t.RUnlock()
	return len(t.store)
}

func (t *properties) Keys() []string {
	t.RLock()
	defer t.RUnlock()
	keys := make([]string, 0, len(t.store))
	for k := range t.store {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *properties) Map() map[string]string {
	t.RLock()
	defer t.RUnlock()
	m := make(map[string]string, len(t.store))
	for k, v := range t.store {
		m[k] = v
	}
	return m
}

func (t *properties) Contains(key string) bool {
	t.RLock()
	defer t.RUnlock()
	_, ok := t.store[key]
	return ok
}

func (t *properties) GetProperty(key string) (value string, ok bool) {
	t.RLock()
	defer t.RUnlock()
	value, ok = t.store[key]
	return
}

func (t *properties) nextPropertyResolver(i int) (PropertyResolver, bool) {
	t.RLock()
	defer t.RUnlock()
	if i < 0 || i >= len(t.resolvers) {
		return nil, false
	}
	return t.resolvers[i], true
}

func (t *properties) Get(key string) (value string, ok bool) {
	for i := 0; ; i++ {
		r, ok := t.nextPropertyResolver(i)
		if !ok {
			break
		}
		if value, ok := r.GetProperty(key); ok {
			return value, true
		}
	}
	return "", false
}

func (t *properties) GetString(key, def string) string {
	if value, ok := t.Get(key); ok {
		return value
	}
	return def
}

func (t *properties) GetBool(key string, def bool) bool {
	if value, ok := t.Get(key); ok {
		if v, err := parseBool(value); err == nil {
			return v
		}
	}
	return def
}

func (t *properties) GetInt(key string, def int) int {
	if value, ok := t.Get(key); ok {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return def
}

func (t *properties) GetFloat(key string, def float64) float64 {
	if value, ok := t.Get(key); ok {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return def
}

func (t *properties) GetDuration(key string, def time.Duration) time.Duration {
	if value, ok := t.Get(key); ok {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return def
}

func (t *properties) Set(key string, value string) {
	t.Lock()
	defer t.Unlock()
	t.store[key] = value
}

func (t *properties) Remove(key string) bool {
	t.Lock()
	defer t.Unlock()
	_, ok := t.store[key]
	delete(t.store, key)
	return ok
}

func (t *properties) Clear() {
	t.Lock()
	defer t.Unlock()
	t.store = make(map[string]string)
}

/**
Literal conversion used by constructor args and property values.
Assignable values pass through, convertible ones are converted, strings
are parsed against the target type.
*/
func convertLiteral(value interface{}, targetType reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(targetType), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(targetType) {
		return v, nil
	}
	if s, ok := value.(string); ok && targetType.Kind() != reflect.String {
		return convertProperty(s, targetType)
	}
	if v.Type().ConvertibleTo(targetType) && convertibleKind(v.Kind()) && convertibleKind(targetType.Kind()) {
		return v.Convert(targetType), nil
	}
	return reflect.Value{}, errors.Errorf("value of type '%v' is not assignable to '%v'", v.Type(), targetType)
}

func convertibleKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

var (
	durationClass = reflect.TypeOf(time.Millisecond)
	timeClass     = reflect.TypeOf(time.Time{})
)

func convertProperty(s string, t reflect.Type) (val reflect.Value, err error) {
	var v interface{}

	switch {

	case isArray(t):
		parts := trimSplit(s, ";")
		slice := reflect.MakeSlice(t, 0, len(parts))
		for _, s := range parts {
			val, err := convertProperty(s, t.Elem())
			if err != nil {
				return slice, err
			}
			slice = reflect.Append(slice, val)
		}
		return slice, nil

	case t == durationClass:
		v, err = time.ParseDuration(s)

	case t == timeClass:
		v, err = time.Parse(time.RFC3339, s)

	case t.Kind() == reflect.Bool:
		v, err = parseBool(s)

	case t.Kind() == reflect.String:
		v, err = s, nil

	case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
		v, err = strconv.ParseFloat(s, 64)

	case isInt(t):
		v, err = strconv.ParseInt(s, 10, 64)

	case isUint(t):
		v, err = strconv.ParseUint(s, 10, 64)

	default:
		return reflect.Zero(t), errors.Errorf("unsupported conversion of '%s' to type %s", s, t)
	}

	if err != nil {
		return reflect.Zero(t), err
	}

	return reflect.ValueOf(v).Convert(t), nil
}

func isInt(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

func isUint(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func isArray(t reflect.Type) bool {
	return t.Kind() == reflect.Array || t.Kind() == reflect.Slice
}

func parseBool(str string) (bool, error) {
	switch str {
	case "1", "t", "T", "true", "TRUE", "True", "on", "ON", "On":
		return true, nil
	case "0", "f", "F", "false", "FALSE", "False", "off", "OFF", "Off":
		return false, nil
	}
	return false, errors.Errorf("invalid syntax '%s'", str)
}

func trimSplit(s string, sep string) []string {
	var a []string
	for _, v := range strings.Split(s, sep) {
		if v = strings.TrimSpace(v); v != "" {
			a = append(a, v)
		}
	}
	return a
}
