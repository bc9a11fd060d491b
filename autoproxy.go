/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"reflect"
	"sync"
)

/**
Post-processor that turns beans with at least one eligible advisor into
proxies. It attaches at two points of the bean lifecycle: the
early-reference hook, so that reference cycles observe the proxy rather
than the raw target, and the after-init phase for everything else. The
same bean is never wrapped twice.
*/

type AutoProxyCreator struct {
	factory  *beanFactory
	matcher  *advisorMatcher
	settings Settings

	mu        sync.Mutex
	earlyRefs map[string]interface{}
}

func newAutoProxyCreator(factory *beanFactory, matcher *advisorMatcher, settings Settings) *AutoProxyCreator {
	return &AutoProxyCreator{
		factory:   factory,
		matcher:   matcher,
		settings:  settings,
		earlyRefs: make(map[string]interface{}),
	}
}

// runs after every user post-processor
func (t *AutoProxyCreator) Order() int {
	return 1 << 30
}

func (t *AutoProxyCreator) BeforeInstantiation(beanType reflect.Type, beanName string) (interface{}, error) {
	return nil, nil
}

func (t *AutoProxyCreator) AfterInstantiation(obj interface{}, beanName string) (bool, error) {
	return true, nil
}

func (t *AutoProxyCreator) BeforeInit(obj interface{}, beanName string) (interface{}, error) {
	return obj, nil
}

func (t *AutoProxyCreator) EarlyBeanReference(obj interface{}, beanName string) (interface{}, error) {
	t.mu.Lock()
	t.earlyRefs[beanName] = obj
	t.mu.Unlock()
	return t.wrapIfNecessary(obj, beanName)
}

func (t *AutoProxyCreator) AfterInit(obj interface{}, beanName string) (interface{}, error) {
	t.mu.Lock()
	early, seen := t.earlyRefs[beanName]
	delete(t.earlyRefs, beanName)
	t.mu.Unlock()
	if seen && sameIdentity(early, obj) {
		// already wrapped through the early-reference hook
		return obj, nil
	}
	return t.wrapIfNecessary(obj, beanName)
}

func (t *AutoProxyCreator) wrapIfNecessary(obj interface{}, beanName string) (interface{}, error) {
	if obj == nil || t.isInfrastructure(obj) {
		return obj, nil
	}

	targetType := reflect.TypeOf(obj)
	eligible, err := t.matcher.findEligibleAdvisors(targetType, beanName)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return obj, nil
	}

	config := ProxyConfig{
		TargetName:       beanName,
		Optimize:         t.settings.Optimize,
		ProxyTargetClass: t.settings.ProxyTargetClass,
	}
	if def, ok := t.factory.registry.Find(beanName); ok && len(def.Interfaces) > 0 {
		merged, err := t.factory.registry.Merged(beanName)
		if err != nil {
			return nil, err
		}
		config.Interfaces = merged.Interfaces
	}

	t.factory.tracef("auto-proxying bean '%s' with %d advisors", beanName, len(eligible))
	return NewProxy(obj, eligible, config)
}

/**
AOP infrastructure beans and existing proxies are never auto-proxied.
*/
func (t *AutoProxyCreator) isInfrastructure(obj interface{}) bool {
	switch obj.(type) {
	case *Proxy, Advisor, BeanPostProcessor, DefinitionPostProcessor, Pointcut, MethodInterceptor:
		return true
	}
	return false
}
