/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

/**
Lifecycle position of the context. Refresh walks the phases strictly in
order; a failure at any step lands in ContextFailed with this attempt's
singletons destroyed.
*/

type ContextPhase int

const (
	ContextCreated ContextPhase = iota
	ContextPreparing
	ContextFactoryObtained
	ContextFactoryPrepared
	ContextPostProcessorsInvoked
	ContextBeanPostProcessorsRegistered
	ContextMessageSourceReady
	ContextEventMulticasterReady
	ContextSubclassRefreshed
	ContextListenersRegistered
	ContextSingletonsInstantiated
	ContextCompleted
	ContextFailed
	ContextClosing
	ContextClosed
)

var contextPhaseNames = []string{
	"Created",
	"Preparing",
	"FactoryObtained",
	"FactoryPrepared",
	"PostProcessorsInvoked",
	"BeanPostProcessorsRegistered",
	"MessageSourceReady",
	"EventMulticasterReady",
	"SubclassRefreshed",
	"ListenersRegistered",
	"SingletonsInstantiated",
	"Completed",
	"Failed",
	"Closing",
	"Closed",
}

func (t ContextPhase) String() string {
	if int(t) < len(contextPhaseNames) {
		return contextPhaseNames[t]
	}
	return "Unknown"
}

var ContextClass = reflect.TypeOf((*Context)(nil))

/**
Inversion-of-control container. Build one with New over scanned items,
then Refresh to instantiate the object graph. The context itself, its
Properties and its Settings are registered beans.
*/

type Context struct {
	id         string
	registry   *DefinitionRegistry
	properties Properties
	settings   Settings

	factory *beanFactory
	matcher *advisorMatcher
	debug   *zap.SugaredLogger

	mu      sync.Mutex
	phase   ContextPhase
	active  bool
	running bool

	sources       []*PropertySource
	defProcessors []DefinitionPostProcessor
	processors    []BeanPostProcessor
	listeners     []ContextListener
	extensions    []AdvisorExtension
	builtins      []builtinBean
}

type builtinBean struct {
	name string
	obj  interface{}
}

/**
Creates a context over the scanned items. Recognized items: bean
definitions, pre-built instances, constructor functions, advisors,
advisor extensions, post-processors, property sources and resolvers,
context listeners,
Settings, Verbose, nested lists and Scanner beans. The context is inert
until Refresh.
*/
func New(scan ...interface{}) (*Context, error) {

	t := &Context{
		id:         uuid.New().String(),
		registry:   NewDefinitionRegistry(),
		properties: NewProperties(),
		phase:      ContextCreated,
	}

	err := forEach("", scan, func(pos string, obj interface{}) error {
		return t.scanItem(pos, obj)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func forEach(initialPos string, scan []interface{}, cb func(pos string, obj interface{}) error) error {
	for j, item := range scan {
		var pos string
		if len(initialPos) > 0 {
			pos = fmt.Sprintf("%s.%d", initialPos, j)
		} else {
			pos = strconv.Itoa(j)
		}
		if item == nil {
			continue
		}
		switch obj := item.(type) {
		case Scanner:
			if err := forEach(pos, obj.Beans(), cb); err != nil {
				return err
			}
		case []interface{}:
			if err := forEach(pos, obj, cb); err != nil {
				return err
			}
		default:
			if err := cb(pos, item); err != nil {
				return errors.Wrapf(err, "scan item '%v' on position '%s'", reflect.TypeOf(item), pos)
			}
		}
	}
	return nil
}

func (t *Context) scanItem(pos string, item interface{}) error {
	switch obj := item.(type) {

	case *BeanDefinition:
		return t.registry.Register(obj)

	case Settings:
		t.settings = obj
		return nil
	case *Settings:
		t.settings = *obj
		return nil

	case *Verbose:
		if obj.Log != nil {
			t.debug = obj.Log.Sugar()
		}
		return nil

	case *PropertySource:
		t.sources = append(t.sources, obj)
		return nil

	case PropertyResolver:
		t.properties.Register(obj)
		return nil

	case *PlaceholderConfigurer:
		if obj.props == nil {
			obj.props = t.properties
		}
		t.defProcessors = append(t.defProcessors, obj)
		return nil

	case DefinitionPostProcessor:
		t.defProcessors = append(t.defProcessors, obj)
		return nil

	case BeanPostProcessor:
		t.processors = append(t.processors, obj)
		return nil

	case ContextListener:
		t.listeners = append(t.listeners, obj)
		return nil

	case Advisor:
		return t.registry.Register(&BeanDefinition{
			Name:     obj.AdvisorName(),
			Instance: obj,
		})

	case AdvisorExtension:
		t.extensions = append(t.extensions, obj)
		return nil
	}

	value := reflect.ValueOf(item)
	switch value.Kind() {
	case reflect.Func:
		name, err := constructorBeanName(value.Type())
		if err != nil {
			return err
		}
		return t.registry.Register(&BeanDefinition{
			Name:         name,
			Constructors: []interface{}{item},
		})
	case reflect.Ptr:
		return t.registry.Register(&BeanDefinition{
			Name:     instanceBeanName(item),
			Instance: item,
		})
	}
	return errors.Errorf("unsupported scan item of type '%v' on position '%s'", reflect.TypeOf(item), pos)
}

func instanceBeanName(obj interface{}) string {
	if named, ok := obj.(NamedBean); ok {
		return named.BeanName()
	}
	typ := reflect.TypeOf(obj)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return lowerFirst(typ.Name())
}

func constructorBeanName(fnType reflect.Type) (string, error) {
	if !validConstructorShape(fnType) {
		return "", errors.Errorf("constructor '%v' must return the bean, optionally with a trailing error", fnType)
	}
	out := fnType.Out(0)
	for out.Kind() == reflect.Ptr {
		out = out.Elem()
	}
	if out.Name() == "" {
		return "", errors.Errorf("constructor '%v' returns an unnamed type, register it with a BeanDefinition instead", fnType)
	}
	return lowerFirst(out.Name()), nil
}

func (t *Context) tracef(format string, args ...interface{}) {
	if t.debug != nil {
		t.debug.Debugf(format, args...)
	}
}

func (t *Context) ID() string {
	return t.id
}

func (t *Context) Phase() ContextPhase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *Context) Properties() Properties {
	return t.properties
}

func (t *Context) String() string {
	return fmt.Sprintf("Context{id=%s, phase=%v}", t.id, t.Phase())
}

/**
Instantiates the object graph: loads property sources, runs definition
post-processors, freezes the registry, installs the bean post-processor
pipeline with the auto-proxy creator, pre-instantiates every non-lazy
singleton and publishes ContextRefreshedEvent. Refresh runs once; a
failed refresh destroys the singletons it managed to create and leaves
the context unusable.
*/
func (t *Context) Refresh() error {
	t.mu.Lock()

	if t.phase != ContextCreated {
		defer t.mu.Unlock()
		return &StateError{Op: "Refresh", Phase: t.phase}
	}

	err := t.doRefresh()
	if err != nil {
		failedAt := t.phase
		t.phase = ContextFailed
		if t.factory != nil {
			if destroyErr := t.factory.singletons.destroyAll(); destroyErr != nil {
				t.tracef("cleanup after failed refresh: %v", destroyErr)
			}
		}
		t.mu.Unlock()
		return errors.Wrapf(err, "context refresh failed in phase '%v'", failedAt)
	}

	t.phase = ContextCompleted
	t.active = true
	t.mu.Unlock()

	// outside the monitor, listeners may call back into the context
	t.publish(ContextRefreshedEvent)
	return nil
}

func (t *Context) doRefresh() error {

	t.transition(ContextPreparing)
	if err := t.loadProperties(); err != nil {
		return err
	}
	t.registerBuiltins()

	t.transition(ContextFactoryObtained)
	t.factory = newBeanFactory(t.registry, t.settings, t.debug)

	t.transition(ContextFactoryPrepared)
	t.matcher = newAdvisorMatcher(t.factory)
	for _, ext := range t.extensions {
		t.matcher.addExtension(ext)
	}
	t.seedBuiltinSingletons()

	t.transition(ContextPostProcessorsInvoked)
	for _, p := range sortDefinitionPostProcessors(t.defProcessors) {
		if err := p.PostProcessDefinitions(t.registry); err != nil {
			return errors.Wrap(err, "definition post-processing")
		}
	}
	t.registry.Freeze()

	t.transition(ContextBeanPostProcessorsRegistered)
	if err := t.installPostProcessors(); err != nil {
		return err
	}

	// no message source or multicaster machinery behind these two
	t.transition(ContextMessageSourceReady)
	t.transition(ContextEventMulticasterReady)
	t.transition(ContextSubclassRefreshed)

	t.transition(ContextListenersRegistered)

	t.transition(ContextSingletonsInstantiated)
	if err := t.instantiateSingletons(); err != nil {
		return err
	}
	t.collectListeners()

	return nil
}

func (t *Context) transition(phase ContextPhase) {
	t.phase = phase
	t.tracef("context '%s' entering phase '%v'", t.id, phase)
}

func (t *Context) loadProperties() error {
	for _, source := range t.sources {
		if source.Map != nil {
			t.properties.LoadMap(source.Map)
			continue
		}
		if source.Path == "" {
			continue
		}
		file, err := os.Open(source.Path)
		if err != nil {
			return errors.Wrapf(err, "property source '%s'", source.Path)
		}
		switch filepath.Ext(source.Path) {
		case ".yaml", ".yml":
			err = t.properties.LoadYAML(file)
		case ".env":
			err = t.properties.LoadEnv(file)
		default:
			err = errors.Errorf("unsupported property source format '%s'", source.Path)
		}
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return errors.Wrapf(err, "property source '%s'", source.Path)
		}
	}
	return nil
}

func (t *Context) registerBuiltins() {
	for _, b := range []builtinBean{
		{"context", t},
		{"properties", t.properties},
		{"settings", &t.settings},
	} {
		// a scanned definition with the same name shadows the builtin
		if err := t.registry.Register(&BeanDefinition{Name: b.name, Instance: b.obj}); err == nil {
			t.builtins = append(t.builtins, b)
		}
	}
}

/**
Builtins bypass the creation pipeline: they show up in the singleton
cache fully finished so that lookups and autowiring see them without
post-processing. Only names actually claimed by registerBuiltins get
seeded, a shadowing user definition is served through the regular
pipeline instead.
*/
func (t *Context) seedBuiltinSingletons() {
	for _, b := range t.builtins {
		t.factory.singletons.finishCreation(b.name, b.obj)
	}
}

func (t *Context) installPostProcessors() error {
	list := append([]BeanPostProcessor(nil), t.processors...)

	for _, name := range t.registry.Names() {
		if raw, ok := t.registry.Find(name); !ok || raw.Abstract {
			continue
		}
		def, err := t.registry.Merged(name)
		if err != nil {
			return err
		}
		if !def.Singleton() {
			continue
		}
		defType := t.factory.definitionType(def)
		if defType == nil || !defType.Implements(BeanPostProcessorClass) {
			continue
		}
		obj, err := t.factory.getBean(name)
		if err != nil {
			return errors.Wrapf(err, "bean post-processor '%s'", name)
		}
		list = append(list, obj.(BeanPostProcessor))
	}

	list = append(list, newAutoProxyCreator(t.factory, t.matcher, t.settings))
	t.factory.setPostProcessors(list)
	return nil
}

func (t *Context) instantiateSingletons() error {
	for _, name := range t.registry.Names() {
		if raw, ok := t.registry.Find(name); !ok || raw.Abstract {
			continue
		}
		def, err := t.registry.Merged(name)
		if err != nil {
			return err
		}
		if def.Lazy || !def.Singleton() {
			continue
		}
		if _, err := t.factory.getBean(name); err != nil {
			return err
		}
	}
	return nil
}

func (t *Context) collectListeners() {
	found, err := t.factory.resolveImplementing(ContextListenerClass)
	if err != nil {
		t.tracef("collecting context listeners: %v", err)
		return
	}
	for _, obj := range found {
		listener := obj.(ContextListener)
		if t.hasListener(listener) {
			continue
		}
		t.listeners = append(t.listeners, listener)
	}
}

func (t *Context) hasListener(listener ContextListener) bool {
	for _, known := range t.listeners {
		if sameIdentity(known, listener) {
			return true
		}
	}
	return false
}

func (t *Context) publish(eventType EventType) {
	event := ContextEvent{Type: eventType, ContextID: t.id, Time: time.Now()}
	for _, listener := range t.listeners {
		listener.OnContextEvent(event)
	}
}

func (t *Context) ensureActive(op string) error {
	if !t.active {
		return &StateError{Op: op, Phase: t.phase}
	}
	return nil
}

func (t *Context) GetBean(name string) (interface{}, error) {
	t.mu.Lock()
	err := t.ensureActive("GetBean")
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return t.factory.getBean(name)
}

/**
Resolves the single bean assignable to the type, honoring Primary among
multiple candidates.
*/
func (t *Context) GetBeanByType(typ reflect.Type) (interface{}, error) {
	t.mu.Lock()
	err := t.ensureActive("GetBeanByType")
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return t.factory.getBeanByType(typ)
}

func (t *Context) GetBeanNamesForType(typ reflect.Type) []string {
	if t.factory == nil {
		return nil
	}
	return t.factory.namesForType(typ)
}

func (t *Context) ContainsBean(name string) bool {
	return t.registry.Contains(name)
}

func (t *Context) IsSingleton(name string) (bool, error) {
	def, err := t.registry.Merged(t.registry.CanonicalName(name))
	if err != nil {
		return false, &NoSuchBeanError{Name: name}
	}
	return def.Singleton(), nil
}

/**
Starts every singleton Lifecycle bean in registration order. Safe to
call again after Stop.
*/
func (t *Context) Start() error {
	t.mu.Lock()
	if err := t.ensureActive("Start"); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.running {
		t.mu.Unlock()
		return nil
	}
	beans, err := t.lifecycleBeans()
	if err != nil {
		t.mu.Unlock()
		return err
	}
	for _, obj := range beans {
		if err := obj.(Lifecycle).Start(); err != nil {
			t.mu.Unlock()
			return errors.Wrapf(err, "starting lifecycle bean '%v'", reflect.TypeOf(obj))
		}
	}
	t.running = true
	t.mu.Unlock()
	t.publish(ContextStartedEvent)
	return nil
}

func (t *Context) Stop() error {
	t.mu.Lock()
	if err := t.ensureActive("Stop"); err != nil {
		t.mu.Unlock()
		return err
	}
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	err := t.stopLifecycleBeans()
	t.running = false
	t.mu.Unlock()
	t.publish(ContextStoppedEvent)
	return err
}

/**
Singleton Lifecycle beans in creation order, excluding the context
itself which carries Start and Stop of its own.
*/
func (t *Context) lifecycleBeans() ([]interface{}, error) {
	found, err := t.factory.resolveImplementing(LifecycleClass)
	if err != nil {
		return nil, err
	}
	out := found[:0]
	for _, obj := range found {
		if sameIdentity(obj, t) {
			continue
		}
		out = append(out, obj)
	}
	return out, nil
}

func (t *Context) stopLifecycleBeans() error {
	beans, err := t.lifecycleBeans()
	if err != nil {
		return err
	}
	var all error
	for i := len(beans) - 1; i >= 0; i-- {
		if err := beans[i].(Lifecycle).Stop(); err != nil {
			all = multierr.Append(all, errors.Wrapf(err, "stopping lifecycle bean '%v'", reflect.TypeOf(beans[i])))
		}
	}
	return all
}

/**
Publishes the closing event, stops running Lifecycle beans and destroys
singletons in reverse creation order, aggregating destroy failures.
Close is idempotent.
*/
func (t *Context) Close() error {
	t.mu.Lock()

	if t.phase == ContextClosed {
		t.mu.Unlock()
		return nil
	}
	if !t.active {
		t.phase = ContextClosed
		t.mu.Unlock()
		return nil
	}

	t.transition(ContextClosing)
	t.mu.Unlock()
	t.publish(ContextClosingEvent)
	t.mu.Lock()

	var all error
	if t.running {
		all = multierr.Append(all, t.stopLifecycleBeans())
		t.running = false
	}
	all = multierr.Append(all, t.factory.singletons.destroyAll())

	t.active = false
	t.transition(ContextClosed)
	t.mu.Unlock()
	t.publish(ContextClosedEvent)
	return all
}
