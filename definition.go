/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

/**
Constructor argument or property value specification. Exactly one of the
three variants is set: a literal value, a reference to another bean by
name, or a nested inline definition.
*/

type ArgSpec struct {
	value    interface{}
	hasValue bool
	ref      string
	def      *BeanDefinition
}

func Arg(value interface{}) ArgSpec {
	return ArgSpec{value: value, hasValue: true}
}

func ArgRef(beanName string) ArgSpec {
	return ArgSpec{ref: beanName}
}

func ArgDef(def *BeanDefinition) ArgSpec {
	return ArgSpec{def: def}
}

func (t ArgSpec) empty() bool {
	return !t.hasValue && t.ref == "" && t.def == nil
}

func (t ArgSpec) String() string {
	switch {
	case t.hasValue:
		return fmt.Sprintf("value(%v)", t.value)
	case t.ref != "":
		return fmt.Sprintf("ref(%s)", t.ref)
	case t.def != nil:
		return fmt.Sprintf("def(%s)", t.def.Name)
	default:
		return "autowire"
	}
}

type PropertySpec struct {
	name string
	arg  ArgSpec
}

func Prop(fieldName string, value interface{}) PropertySpec {
	return PropertySpec{name: fieldName, arg: Arg(value)}
}

func PropRef(fieldName string, beanName string) PropertySpec {
	return PropertySpec{name: fieldName, arg: ArgRef(beanName)}
}

func PropDef(fieldName string, def *BeanDefinition) PropertySpec {
	return PropertySpec{name: fieldName, arg: ArgDef(def)}
}

func (t PropertySpec) FieldName() string {
	return t.name
}

/**
Declarative descriptor of one named component. Produced by a configuration
layer (or directly in code) and consumed by the instantiation engine.

Either Type (pointer to struct, instantiated at its zero value) or at
least one candidate constructor function must be present on a concrete
definition after merging with its parent template. Constructor candidates
are plain functions returning the bean, optionally with a trailing error.
*/

type BeanDefinition struct {
	Name    string
	Aliases []string

	/**
	Pointer-to-struct type of the bean, e.g. reflect.TypeOf((*UserService)(nil)).
	*/
	Type reflect.Type

	/**
	Candidate constructor functions. The engine picks the candidate whose
	parameters are satisfiable by explicit args and registered beans,
	preferring higher parameter counts, then earlier declaration order.
	*/
	Constructors []interface{}

	/**
	Pre-built instance. When set, instantiation is skipped and the
	instance still travels through population and the full pipeline.
	*/
	Instance interface{}

	Args       []ArgSpec
	Properties []PropertySpec

	Scope    string
	Lazy     bool
	Primary  bool
	Order    int
	Autowire AutowireMode

	/**
	Names of exported methods invoked by reflection after PostConstruct
	and before Destroy respectively. The methods take no arguments and
	return nothing or a single error.
	*/
	InitMethod    string
	DestroyMethod string

	/**
	Template definitions are not instantiable; they only serve as parents
	for merging.
	*/
	Abstract bool
	Parent   string

	DependsOn []string

	/**
	Client-visible interfaces of the bean, used by the proxy factory to
	pick the interface strategy and build the dispatch table.
	*/
	Interfaces []reflect.Type
}

func (t *BeanDefinition) Singleton() bool {
	return t.Scope == "" || t.Scope == ScopeSingleton
}

func (t *BeanDefinition) String() string {
	return fmt.Sprintf("BeanDefinition{name=%s, type=%v, scope=%s, lazy=%v}", t.Name, t.Type, t.Scope, t.Lazy)
}

func (t *BeanDefinition) clone() *BeanDefinition {
	c := *t
	c.Aliases = append([]string(nil), t.Aliases...)
	c.Constructors = append([]interface{}(nil), t.Constructors...)
	c.Args = append([]ArgSpec(nil), t.Args...)
	c.Properties = append([]PropertySpec(nil), t.Properties...)
	c.DependsOn = append([]string(nil), t.DependsOn...)
	c.Interfaces = append([]reflect.Type(nil), t.Interfaces...)
	return &c
}

/**
Registry of bean definitions. Written during configuration loading and by
definition post-processors, frozen before the first bean is instantiated.
*/

type DefinitionRegistry struct {
	mu      sync.RWMutex
	defs    map[string]*BeanDefinition
	aliases map[string]string
	order   []string
	frozen  bool
}

func NewDefinitionRegistry() *DefinitionRegistry {
	return &DefinitionRegistry{
		defs:    make(map[string]*BeanDefinition),
		aliases: make(map[string]string),
	}
}

func (t *DefinitionRegistry) Register(def *BeanDefinition) error {
	if def == nil {
		return errors.New("nil bean definition")
	}
	if def.Name == "" {
		return errors.New("bean definition without name")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return errors.Errorf("registry is frozen, can not register bean '%s'", def.Name)
	}
	if _, ok := t.defs[def.Name]; ok {
		return errors.Errorf("bean definition '%s' already registered", def.Name)
	}
	if _, ok := t.aliases[def.Name]; ok {
		return errors.Errorf("bean name '%s' conflicts with a registered alias", def.Name)
	}
	for _, alias := range def.Aliases {
		if _, ok := t.defs[alias]; ok {
			return errors.Errorf("alias '%s' of bean '%s' conflicts with a registered bean", alias, def.Name)
		}
		if owner, ok := t.aliases[alias]; ok && owner != def.Name {
			return errors.Errorf("alias '%s' of bean '%s' already points to '%s'", alias, def.Name, owner)
		}
	}
	t.defs[def.Name] = def
	t.order = append(t.order, def.Name)
	for _, alias := range def.Aliases {
		t.aliases[alias] = def.Name
	}
	return nil
}

/**
Resolves aliases to the canonical bean name.
*/
func (t *DefinitionRegistry) CanonicalName(name string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if owner, ok := t.aliases[name]; ok {
		return owner
	}
	return name
}

func (t *DefinitionRegistry) Find(name string) (*BeanDefinition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if owner, ok := t.aliases[name]; ok {
		name = owner
	}
	def, ok := t.defs[name]
	return def, ok
}

func (t *DefinitionRegistry) Contains(name string) bool {
	_, ok := t.Find(name)
	return ok
}

/**
Names in registration order, canonical only.
*/
func (t *DefinitionRegistry) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *DefinitionRegistry) Freeze() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frozen = true
}

func (t *DefinitionRegistry) Frozen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frozen
}

/**
Returns the definition merged with its parent template chain. The child
wins on every scalar attribute it sets; args and properties of the parent
are inherited unless overridden (properties by field name, args by
position). The merged result must resolve to exactly one instantiable
type or constructor set.
*/
func (t *DefinitionRegistry) Merged(name string) (*BeanDefinition, error) {
	def, ok := t.Find(name)
	if !ok {
		return nil, &NoSuchBeanError{Name: name}
	}
	merged, err := t.merge(def, map[string]bool{def.Name: true})
	if err != nil {
		return nil, err
	}
	if merged.Abstract {
		return nil, errors.Errorf("bean definition '%s' is abstract and can not be instantiated", name)
	}
	if merged.Type == nil && len(merged.Constructors) == 0 && merged.Instance == nil {
		return nil, errors.Errorf("bean definition '%s' resolves to no instantiable type or constructor", name)
	}
	if merged.Type != nil && (merged.Type.Kind() != reflect.Ptr || merged.Type.Elem().Kind() != reflect.Struct) {
		return nil, errors.Errorf("bean definition '%s' type '%v' must be a pointer to struct", name, merged.Type)
	}
	return merged, nil
}

func (t *DefinitionRegistry) merge(def *BeanDefinition, visited map[string]bool) (*BeanDefinition, error) {
	if def.Parent == "" {
		return def.clone(), nil
	}
	if visited[def.Parent] {
		return nil, errors.Errorf("parent cycle in bean definition '%s' via parent '%s'", def.Name, def.Parent)
	}
	parentDef, ok := t.Find(def.Parent)
	if !ok {
		return nil, errors.Errorf("parent definition '%s' of bean '%s' not found", def.Parent, def.Name)
	}
	visited[def.Parent] = true
	parent, err := t.merge(parentDef, visited)
	if err != nil {
		return nil, err
	}

	merged := parent.clone()
	merged.Name = def.Name
	merged.Aliases = append([]string(nil), def.Aliases...)
	merged.Abstract = def.Abstract
	merged.Parent = ""
	if def.Type != nil {
		merged.Type = def.Type
	}
	if len(def.Constructors) > 0 {
		merged.Constructors = append([]interface{}(nil), def.Constructors...)
	}
	if def.Instance != nil {
		merged.Instance = def.Instance
	}
	if def.Scope != "" {
		merged.Scope = def.Scope
	}
	if def.Lazy {
		merged.Lazy = true
	}
	if def.Primary {
		merged.Primary = true
	}
	if def.Order != 0 {
		merged.Order = def.Order
	}
	if def.Autowire != AutowireNone {
		merged.Autowire = def.Autowire
	}
	if def.InitMethod != "" {
		merged.InitMethod = def.InitMethod
	}
	if def.DestroyMethod != "" {
		merged.DestroyMethod = def.DestroyMethod
	}
	if len(def.DependsOn) > 0 {
		merged.DependsOn = append([]string(nil), def.DependsOn...)
	}
	if len(def.Interfaces) > 0 {
		merged.Interfaces = append([]reflect.Type(nil), def.Interfaces...)
	}

	// args override by position
	for i, arg := range def.Args {
		if i < len(merged.Args) {
			merged.Args[i] = arg
		} else {
			merged.Args = append(merged.Args, arg)
		}
	}

	// properties override by field name
	for _, prop := range def.Properties {
		replaced := false
		for i, existing := range merged.Properties {
			if existing.name == prop.name {
				merged.Properties[i] = prop
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Properties = append(merged.Properties, prop)
		}
	}

	return merged, nil
}

/**
Rewrites the stored definition in place. Used by definition
post-processors, forbidden once the registry is frozen.
*/
func (t *DefinitionRegistry) Update(def *BeanDefinition) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return errors.Errorf("registry is frozen, can not update bean '%s'", def.Name)
	}
	if _, ok := t.defs[def.Name]; !ok {
		return errors.Errorf("bean definition '%s' is not registered", def.Name)
	}
	t.defs[def.Name] = def
	return nil
}
