/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"reflect"
	"time"

	"go.uber.org/zap"
)

/**
Bean scopes supported by the container. An empty scope in a definition
means ScopeSingleton.
*/

const (
	ScopeSingleton = "singleton"
	ScopePrototype = "prototype"
)

/**
Autowire mode applied to properties that were not set explicitly.
*/

type AutowireMode int

const (
	AutowireNone AutowireMode = iota
	AutowireByName
	AutowireByType
)

func (t AutowireMode) String() string {
	switch t {
	case AutowireNone:
		return "no"
	case AutowireByName:
		return "byName"
	case AutowireByType:
		return "byType"
	default:
		return "unknown"
	}
}

var InitializingBeanClass = reflect.TypeOf((*InitializingBean)(nil)).Elem()

/**
Runs this method automatically after the bean is populated, before
after-initialization post-processors.
*/

type InitializingBean interface {
	PostConstruct() error
}

var DisposableBeanClass = reflect.TypeOf((*DisposableBean)(nil)).Elem()

/**
Called for each singleton bean in reverse initialization order on context close.
*/

type DisposableBean interface {
	Destroy() error
}

var NamedBeanClass = reflect.TypeOf((*NamedBean)(nil)).Elem()

/**
Instance-provided bean name, used when the definition does not carry one.
*/

type NamedBean interface {
	BeanName() string
}

var OrderedBeanClass = reflect.TypeOf((*OrderedBean)(nil)).Elem()

type OrderedBean interface {
	BeanOrder() int
}

var LifecycleClass = reflect.TypeOf((*Lifecycle)(nil)).Elem()

/**
Singleton beans implementing Lifecycle are started by Context.Start,
stopped in reverse order by Context.Stop and before singleton destruction
on Close.
*/

type Lifecycle interface {
	Start() error
	Stop() error
}

/**
Ordering contract of post-processors and advisors. PriorityOrdered
participants run before plain Ordered ones, which run before unordered
ones. Within a tier ascending Order() wins, registration order on ties.
*/

type Ordered interface {
	Order() int
}

type PriorityOrdered interface {
	Ordered

	/**
	Marker method placing the participant in the earliest ordering tier.
	*/
	PriorityOrdered()
}

var BeanPostProcessorClass = reflect.TypeOf((*BeanPostProcessor)(nil)).Elem()

/**
Hook invoked around bean initialization. Both methods may return a
different object: processing continues on the returned object and the
returned object is what ends up cached and injected. Returning nil
keeps the current object and stops the remaining processors of the phase.
*/

type BeanPostProcessor interface {
	BeforeInit(obj interface{}, beanName string) (interface{}, error)

	AfterInit(obj interface{}, beanName string) (interface{}, error)
}

var InstantiationAwarePostProcessorClass = reflect.TypeOf((*InstantiationAwarePostProcessor)(nil)).Elem()

/**
Extends BeanPostProcessor with hooks around instantiation.

BeforeInstantiation may short-circuit standard construction entirely by
returning a substitute object; in that case only the AfterInit phase of
the pipeline is applied to the substitute. AfterInstantiation returning
false vetoes property population for the bean.
*/

type InstantiationAwarePostProcessor interface {
	BeanPostProcessor

	BeforeInstantiation(beanType reflect.Type, beanName string) (interface{}, error)

	AfterInstantiation(obj interface{}, beanName string) (bool, error)
}

var SmartInstantiationAwarePostProcessorClass = reflect.TypeOf((*SmartInstantiationAwarePostProcessor)(nil)).Elem()

/**
Early-reference hook used to break reference cycles: when a dependent bean
needs a singleton that is mid-construction, the raw instance is passed
through all SmartInstantiationAwarePostProcessors and the result is what
the dependent receives. The auto-proxy creator attaches here so that
cycles observe the proxy, not the raw target.
*/

type SmartInstantiationAwarePostProcessor interface {
	InstantiationAwarePostProcessor

	EarlyBeanReference(obj interface{}, beanName string) (interface{}, error)
}

var DefinitionPostProcessorClass = reflect.TypeOf((*DefinitionPostProcessor)(nil)).Elem()

/**
Runs once per refresh against the definition registry before any bean is
instantiated. The registry is frozen right after this phase.
*/

type DefinitionPostProcessor interface {
	PostProcessDefinitions(registry *DefinitionRegistry) error
}

var ScannerClass = reflect.TypeOf((*Scanner)(nil)).Elem()

/**
Provides pre-scanned items for New, allowing item lists to be composed.
*/

type Scanner interface {
	Beans() []interface{}
}

var ContextListenerClass = reflect.TypeOf((*ContextListener)(nil)).Elem()

type EventType int

const (
	ContextRefreshedEvent EventType = iota
	ContextClosingEvent
	ContextClosedEvent
	ContextStartedEvent
	ContextStoppedEvent
)

func (t EventType) String() string {
	switch t {
	case ContextRefreshedEvent:
		return "ContextRefreshed"
	case ContextClosingEvent:
		return "ContextClosing"
	case ContextClosedEvent:
		return "ContextClosed"
	case ContextStartedEvent:
		return "ContextStarted"
	case ContextStoppedEvent:
		return "ContextStopped"
	default:
		return "Unknown"
	}
}

type ContextEvent struct {
	Type      EventType
	ContextID string
	Time      time.Time
}

/**
Receives lifecycle events of the owning context. Listeners are collected
from scanned items and from singleton beans implementing the interface.
*/

type ContextListener interface {
	OnContextEvent(event ContextEvent)
}

/**
Container-wide settings, scanned as a plain value in New.
*/

var SettingsClass = reflect.TypeOf((*Settings)(nil))

type Settings struct {

	/**
	Disables the early-reference mechanism entirely. With circular
	references disabled any singleton cycle fails fast.
	*/
	DisableCircularReferences bool

	/**
	Permits a dependent bean to keep an early raw reference even when the
	bean it points at was replaced by a proxy at the end of its
	construction. Off by default: the container raises a creation error
	instead of letting the stale reference escape.
	*/
	AllowRawInjection bool

	/**
	Forces subclass-style proxying for all auto-created proxies.
	*/
	ProxyTargetClass bool

	/**
	Requests aggressive proxy optimization, also selecting the subclass
	strategy.
	*/
	Optimize bool
}

/**
Use this bean first in the New item list to trace context construction.
*/

var VerboseClass = reflect.TypeOf((*Verbose)(nil))

type Verbose struct {
	Log *zap.Logger
}
