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

type ProxyConfig struct {
	TargetName string

	/**
	Aggressive optimization hint; selects the subclass strategy.
	*/
	Optimize bool

	/**
	Forces the subclass strategy regardless of declared interfaces.
	*/
	ProxyTargetClass bool

	/**
	Client-visible interfaces of the target. The interface strategy
	exposes exactly these; a single marker interface without methods does
	not count as usable.
	*/
	Interfaces []reflect.Type
}

/**
Proxying strategy: dispatch restricted to the declared interfaces, or
the full exported method set of the concrete type (the subclass analog).
*/

type proxyStrategy int

const (
	interfaceStrategy proxyStrategy = iota
	subclassStrategy
)

func (t proxyStrategy) String() string {
	if t == subclassStrategy {
		return "subclass"
	}
	return "interface"
}

var ProxyClass = reflect.TypeOf((*Proxy)(nil))

/**
Runtime stand-in for a target bean. Every dispatchable method routes
through the ordered interceptor chain built from the resolved advisors;
introduced interfaces dispatch to their delegate. One target has at most
one proxy per container.
*/

type Proxy struct {
	target     interface{}
	targetType reflect.Type
	strategy   proxyStrategy
	advisors   []Advisor
	config     ProxyConfig

	methods    map[string]proxyMethod
	introduced []reflect.Type

	chains sync.Map // method name -> []interceptorEntry
}

type proxyMethod struct {
	method     reflect.Method
	recv       reflect.Value
	introduced bool
}

/**
Builds a proxy for the target with the resolved, ordered advisor list.
Strategy selection: subclass when optimization is requested, class
proxying is forced, or no usable interfaces exist; interface otherwise,
and always when the target is itself a proxy (no proxy-of-proxy class
growth). A subclass selection over a target without interceptable
methods fails, never falls back silently.
*/
func NewProxy(target interface{}, advisors []Advisor, config ProxyConfig) (*Proxy, error) {
	if target == nil {
		return nil, &ProxyConfigError{Reason: "proxy target is nil"}
	}
	targetType := reflect.TypeOf(target)

	strategy, err := chooseStrategy(&config, target, targetType)
	if err != nil {
		return nil, err
	}

	t := &Proxy{
		target:     target,
		targetType: targetType,
		strategy:   strategy,
		advisors:   advisors,
		config:     config,
		methods:    make(map[string]proxyMethod),
	}

	if err := t.buildMethodTable(); err != nil {
		return nil, err
	}
	if err := t.applyIntroductions(); err != nil {
		return nil, err
	}
	return t, nil
}

func chooseStrategy(config *ProxyConfig, target interface{}, targetType reflect.Type) (proxyStrategy, error) {
	if _, isProxy := target.(*Proxy); isProxy || targetType.Kind() == reflect.Interface {
		// mandatory interface proxying for interfaces and existing proxies
		return interfaceStrategy, nil
	}
	if config.Optimize || config.ProxyTargetClass || len(usableInterfaces(config.Interfaces)) == 0 {
		if targetType.NumMethod() == 0 {
			return 0, &ProxyConfigError{
				TargetType: targetType,
				Reason:     "subclass proxying selected but the target exposes no interceptable methods",
			}
		}
		return subclassStrategy, nil
	}
	return interfaceStrategy, nil
}

func usableInterfaces(ifaces []reflect.Type) []reflect.Type {
	var out []reflect.Type
	for _, iface := range ifaces {
		if iface != nil && iface.Kind() == reflect.Interface && iface.NumMethod() > 0 {
			out = append(out, iface)
		}
	}
	return out
}

func (t *Proxy) buildMethodTable() error {

	if inner, ok := t.target.(*Proxy); ok {
		// re-dispatch through the wrapped proxy so its own chain still runs
		for name, pm := range inner.methods {
			t.methods[name] = proxyMethod{method: pm.method, recv: reflect.ValueOf(inner)}
		}
		return nil
	}

	targetValue := reflect.ValueOf(t.target)

	if t.strategy == subclassStrategy {
		for i := 0; i < t.targetType.NumMethod(); i++ {
			m := t.targetType.Method(i)
			t.methods[m.Name] = proxyMethod{method: m, recv: targetValue}
		}
		return nil
	}

	for _, iface := range usableInterfaces(t.config.Interfaces) {
		if !t.targetType.Implements(iface) {
			return &ProxyConfigError{
				TargetType: t.targetType,
				Reason:     fmt.Sprintf("target does not implement declared interface '%v'", iface),
			}
		}
		for i := 0; i < iface.NumMethod(); i++ {
			name := iface.Method(i).Name
			m, ok := t.targetType.MethodByName(name)
			if !ok {
				return &ProxyConfigError{
					TargetType: t.targetType,
					Reason:     fmt.Sprintf("method '%s' of interface '%v' not found on target", name, iface),
				}
			}
			t.methods[name] = proxyMethod{method: m, recv: targetValue}
		}
	}
	if len(t.methods) == 0 {
		return &ProxyConfigError{TargetType: t.targetType, Reason: "no dispatchable methods"}
	}
	return nil
}

/**
Introduced interfaces gain dispatch entries backed by the advisor's
delegate; existing target methods are never overridden.
*/
func (t *Proxy) applyIntroductions() error {
	for _, advisor := range t.advisors {
		ia, ok := advisor.(*IntroductionAdvisor)
		if !ok || !ia.classFilter()(t.targetType) {
			continue
		}
		if ia.Interface == nil || ia.Interface.Kind() != reflect.Interface {
			return &ProxyConfigError{TargetType: t.targetType,
				Reason: fmt.Sprintf("introduction advisor '%s' declares no interface", ia.Name)}
		}
		delegateType := reflect.TypeOf(ia.Delegate)
		if delegateType == nil || !delegateType.Implements(ia.Interface) {
			return &ProxyConfigError{TargetType: t.targetType,
				Reason: fmt.Sprintf("delegate of introduction advisor '%s' does not implement '%v'", ia.Name, ia.Interface)}
		}
		delegateValue := reflect.ValueOf(ia.Delegate)
		for i := 0; i < ia.Interface.NumMethod(); i++ {
			name := ia.Interface.Method(i).Name
			if _, exists := t.methods[name]; exists {
				continue
			}
			m, _ := delegateType.MethodByName(name)
			t.methods[name] = proxyMethod{method: m, recv: delegateValue, introduced: true}
		}
		t.introduced = append(t.introduced, ia.Interface)
	}
	return nil
}

func (t *Proxy) Target() interface{} {
	return t.target
}

func (t *Proxy) TargetType() reflect.Type {
	return t.targetType
}

func (t *Proxy) Advisors() []Advisor {
	return append([]Advisor(nil), t.advisors...)
}

func (t *Proxy) ProxiedInterfaces() []reflect.Type {
	out := append([]reflect.Type(nil), usableInterfaces(t.config.Interfaces)...)
	return append(out, t.introduced...)
}

/**
True when the proxy answers the interface: the target's own type for the
subclass strategy, the declared interfaces for the interface strategy,
plus every introduced interface in both cases.
*/
func (t *Proxy) Implements(iface reflect.Type) bool {
	if iface == nil || iface.Kind() != reflect.Interface {
		return false
	}
	for _, intro := range t.introduced {
		if intro == iface || intro.Implements(iface) {
			return true
		}
	}
	if t.strategy == subclassStrategy {
		return t.targetType.Implements(iface)
	}
	for _, declared := range usableInterfaces(t.config.Interfaces) {
		if declared == iface || declared.Implements(iface) {
			return true
		}
	}
	return false
}

func (t *Proxy) String() string {
	return fmt.Sprintf("Proxy{target=%v, strategy=%v, advisors=%d}", t.targetType, t.strategy, len(t.advisors))
}

/**
Dispatches one call through the interceptor chain. Return values exclude
a trailing error return of the method, which is surfaced as the error
result instead. An empty chain invokes the target directly with no
wrapping overhead.
*/
func (t *Proxy) Call(methodName string, args ...interface{}) ([]interface{}, error) {
	pm, ok := t.methods[methodName]
	if !ok {
		return nil, errors.Errorf("proxy of '%v' has no method '%s'", t.targetType, methodName)
	}
	entries, err := t.chainFor(methodName, pm)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return t.invokeTarget(pm, args)
	}
	inv := &methodInvocation{
		proxy:   t,
		pm:      pm,
		args:    args,
		entries: entries,
	}
	return inv.Proceed()
}

/**
Interceptor chain per method, cached by signature. Static matching runs
here once; runtime matchers stay in the entry and are re-evaluated on
every invocation.
*/
func (t *Proxy) chainFor(methodName string, pm proxyMethod) ([]interceptorEntry, error) {
	if cached, ok := t.chains.Load(methodName); ok {
		return cached.([]interceptorEntry), nil
	}

	hasIntroductions := hasMatchingIntroductions(t.advisors, t.targetType)

	entries := []interceptorEntry{}
	for _, advisor := range t.advisors {
		switch a := advisor.(type) {
		case *PointcutAdvisor:
			pc := a.Pointcut
			if pc == nil {
				pc = TruePointcut()
			}
			if !pc.ClassFilter()(t.targetType) {
				continue
			}
			mm := pc.MethodMatcher()
			if !matchesMethod(mm, pm.method, t.targetType, hasIntroductions) {
				continue
			}
			interceptor, err := adaptAdvice(a.Advice)
			if err != nil {
				return nil, errors.Wrapf(err, "advisor '%s'", a.Name)
			}
			entry := interceptorEntry{interceptor: interceptor}
			if rt, ok := mm.(RuntimeMethodMatcher); ok {
				entry.runtime = rt
			}
			entries = append(entries, entry)
		case *IntroductionAdvisor:
			// dispatch table work, no chain contribution
		default:
			if interceptor, ok := advisor.(MethodInterceptor); ok {
				entries = append(entries, interceptorEntry{interceptor: interceptor})
			}
		}
	}

	t.chains.Store(methodName, entries)
	return entries, nil
}

func (t *Proxy) invokeTarget(pm proxyMethod, args []interface{}) ([]interface{}, error) {
	if inner, ok := pm.recv.Interface().(*Proxy); ok {
		return inner.Call(pm.method.Name, args...)
	}

	fn := pm.recv.MethodByName(pm.method.Name)
	fnType := fn.Type()
	if len(args) != fnType.NumIn() && !fnType.IsVariadic() {
		return nil, errors.Errorf("method '%s' of '%v' expects %d arguments, got %d",
			pm.method.Name, t.targetType, fnType.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var paramType reflect.Type
		if fnType.IsVariadic() && i >= fnType.NumIn()-1 {
			paramType = fnType.In(fnType.NumIn() - 1).Elem()
		} else {
			paramType = fnType.In(i)
		}
		if arg == nil {
			in[i] = reflect.Zero(paramType)
		} else {
			in[i] = reflect.ValueOf(arg)
		}
	}

	out := fn.Call(in)
	return splitResults(fnType, out)
}

func splitResults(fnType reflect.Type, out []reflect.Value) ([]interface{}, error) {
	n := fnType.NumOut()
	var err error
	if n > 0 && fnType.Out(n-1) == errorClass {
		if !out[n-1].IsNil() {
			err = out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	results := make([]interface{}, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}
	return results, err
}
