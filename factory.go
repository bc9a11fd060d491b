/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"reflect"
	"sync"
	"unicode"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

/**
Instantiation and population engine. Creation of singletons is serialized
by a single creation mutex (held across a whole top-level creation, so
recursive dependency resolution never re-locks); lookups of finished
singletons bypass it entirely.
*/

type beanFactory struct {
	registry   *DefinitionRegistry
	singletons *singletonCache
	creationMu sync.Mutex

	processors      []BeanPostProcessor
	instProcessors  []InstantiationAwarePostProcessor
	smartProcessors []SmartInstantiationAwarePostProcessor

	settings Settings
	debug    *zap.SugaredLogger
}

func newBeanFactory(registry *DefinitionRegistry, settings Settings, debug *zap.SugaredLogger) *beanFactory {
	return &beanFactory{
		registry:   registry,
		singletons: newSingletonCache(),
		settings:   settings,
		debug:      debug,
	}
}

func (t *beanFactory) tracef(format string, args ...interface{}) {
	if t.debug != nil {
		t.debug.Debugf(format, args...)
	}
}

/**
Installs the ordered post-processor pipeline and caches the capability
subsets. Called once per refresh.
*/
func (t *beanFactory) setPostProcessors(list []BeanPostProcessor) {
	sorted := sortPostProcessors(list)
	t.processors = sorted
	t.instProcessors = nil
	t.smartProcessors = nil
	for _, p := range sorted {
		if ip, ok := p.(InstantiationAwarePostProcessor); ok {
			t.instProcessors = append(t.instProcessors, ip)
		}
		if sp, ok := p.(SmartInstantiationAwarePostProcessor); ok {
			t.smartProcessors = append(t.smartProcessors, sp)
		}
	}
}

func (t *beanFactory) getBean(name string) (interface{}, error) {
	canonical := t.registry.CanonicalName(name)
	if obj, ok := t.singletons.get(canonical); ok {
		return obj, nil
	}
	t.creationMu.Lock()
	defer t.creationMu.Unlock()
	return t.doGetBean(canonical)
}

func (t *beanFactory) getBeanByType(typ reflect.Type) (interface{}, error) {
	t.creationMu.Lock()
	defer t.creationMu.Unlock()
	v, err := t.autowireByType(typ, "", true)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

/**
Creation-path lookup, creation mutex held. Dependents of a bean that is
mid-construction receive its early reference; a name already on the
creation chain without an early reference is a constructor-level cycle.
*/
func (t *beanFactory) doGetBean(name string) (interface{}, error) {
	name = t.registry.CanonicalName(name)

	if obj, ok := t.singletons.get(name); ok {
		return obj, nil
	}

	if t.singletons.inCreation(name) {
		early, ok, err := t.singletons.earlyReference(name)
		if err != nil {
			return nil, creationError(name, err)
		}
		if ok {
			t.tracef("early reference of '%s' exposed to dependents", name)
			return early, nil
		}
		return nil, &CycleError{Chain: t.singletons.cycleChain(name)}
	}

	def, err := t.registry.Merged(name)
	if err != nil {
		return nil, err
	}

	if def.Singleton() {
		if err := t.singletons.beginCreation(name); err != nil {
			return nil, creationError(name, err)
		}
		if err := t.resolveDependsOn(name, def); err != nil {
			t.singletons.failCreation(name)
			return nil, err
		}
		obj, err := t.createBean(name, def)
		if err != nil {
			t.singletons.failCreation(name)
			return nil, creationError(name, err)
		}
		t.singletons.finishCreation(name, obj)
		t.tracef("singleton '%s' created with type '%v'", name, reflect.TypeOf(obj))
		return obj, nil
	}

	if err := t.singletons.pushPrototype(name); err != nil {
		return nil, err
	}
	defer t.singletons.popPrototype(name)
	if err := t.resolveDependsOn(name, def); err != nil {
		return nil, err
	}
	obj, err := t.createBean(name, def)
	if err != nil {
		return nil, creationError(name, err)
	}
	return obj, nil
}

func (t *beanFactory) resolveDependsOn(name string, def *BeanDefinition) error {
	for _, dep := range def.DependsOn {
		if _, err := t.doGetBean(dep); err != nil {
			return creationError(name, errors.Wrapf(err, "depends-on '%s'", dep))
		}
	}
	return nil
}

/**
The eight-step creation pipeline: instantiate, expose early, populate,
before-init processors, init callbacks, after-init processors, stale
early-reference check, destroy registration.
*/
func (t *beanFactory) createBean(name string, def *BeanDefinition) (obj interface{}, err error) {

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("recovered while creating bean '%s': %v", name, r)
		}
	}()

	if short, err := t.applyBeforeInstantiation(def, name); err != nil {
		return nil, err
	} else if short != nil {
		t.tracef("bean '%s' short-circuited by before-instantiation processor", name)
		return t.applyAfterInit(short, name)
	}

	raw, err := t.instantiate(name, def)
	if err != nil {
		return nil, err
	}

	if def.Singleton() && !t.settings.DisableCircularReferences {
		t.singletons.setEarlyFactory(name, func() (interface{}, error) {
			return t.earlyBeanReference(raw, name)
		})
	}

	populate, err := t.applyAfterInstantiation(raw, name)
	if err != nil {
		return nil, err
	}
	if populate {
		if err := t.populate(raw, name, def); err != nil {
			return nil, err
		}
	}

	obj = raw
	if obj, err = t.applyBeforeInit(obj, name); err != nil {
		return nil, err
	}
	if err = t.initialize(obj, name, def); err != nil {
		return nil, err
	}
	if obj, err = t.applyAfterInit(obj, name); err != nil {
		return nil, err
	}

	if def.Singleton() {
		if early, exposed := t.singletons.exposedEarly(name); exposed {
			if sameIdentity(obj, raw) {
				// initialization kept the instance, adopt what dependents already hold
				obj = early
			} else if !sameIdentity(early, obj) && !t.settings.AllowRawInjection {
				return nil, errors.Errorf(
					"bean '%s' was replaced during initialization after its early reference escaped to a dependent; "+
						"dependents hold a stale reference (set Settings.AllowRawInjection to permit it)", name)
			}
		}
		t.registerDisposable(name, def, obj)
	}

	return obj, nil
}

/**
Runs the raw instance through all early-reference post-processors;
the result is what cycle participants receive.
*/
func (t *beanFactory) earlyBeanReference(raw interface{}, name string) (interface{}, error) {
	obj := raw
	for _, p := range t.smartProcessors {
		next, err := p.EarlyBeanReference(obj, name)
		if err != nil {
			return nil, err
		}
		if next != nil {
			obj = next
		}
	}
	return obj, nil
}

func (t *beanFactory) applyBeforeInstantiation(def *BeanDefinition, name string) (interface{}, error) {
	beanType := t.definitionType(def)
	for _, p := range t.instProcessors {
		short, err := p.BeforeInstantiation(beanType, name)
		if err != nil {
			return nil, err
		}
		if short != nil {
			return short, nil
		}
	}
	return nil, nil
}

func (t *beanFactory) applyAfterInstantiation(obj interface{}, name string) (bool, error) {
	for _, p := range t.instProcessors {
		cont, err := p.AfterInstantiation(obj, name)
		if err != nil {
			return false, err
		}
		if !cont {
			return false, nil
		}
	}
	return true, nil
}

func (t *beanFactory) applyBeforeInit(obj interface{}, name string) (interface{}, error) {
	for _, p := range t.processors {
		next, err := p.BeforeInit(obj, name)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return obj, nil
		}
		obj = next
	}
	return obj, nil
}

func (t *beanFactory) applyAfterInit(obj interface{}, name string) (interface{}, error) {
	for _, p := range t.processors {
		next, err := p.AfterInit(obj, name)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return obj, nil
		}
		obj = next
	}
	return obj, nil
}

/**
Instantiation: pre-built instance, constructor candidate, or zero value
of the declared struct type.
*/
func (t *beanFactory) instantiate(name string, def *BeanDefinition) (interface{}, error) {

	if def.Instance != nil {
		if !def.Singleton() {
			return nil, errors.Errorf("pre-built instance of bean '%s' can not have prototype scope", name)
		}
		return def.Instance, nil
	}

	if len(def.Constructors) > 0 {
		return t.construct(name, def)
	}

	if len(def.Args) > 0 {
		return nil, errors.Errorf("bean '%s' declares constructor args but no constructor function", name)
	}

	return reflect.New(def.Type.Elem()).Interface(), nil
}

/**
Constructor resolution: among the candidates whose parameters are
satisfiable by explicit args and registered beans, the one with the most
parameters wins; ties go to the earlier declaration. Explicit args take
priority at their positions.
*/
func (t *beanFactory) construct(name string, def *BeanDefinition) (interface{}, error) {

	type candidate struct {
		fn reflect.Value
	}

	var chosen *candidate
	for i, ctor := range def.Constructors {
		fn := reflect.ValueOf(ctor)
		if fn.Kind() != reflect.Func {
			return nil, errors.Errorf("constructor %d of bean '%s' is not a function", i, name)
		}
		if !validConstructorShape(fn.Type()) {
			return nil, errors.Errorf("constructor %d of bean '%s' must return the bean, optionally with a trailing error", i, name)
		}
		if !t.satisfiable(fn.Type(), def) {
			continue
		}
		if chosen == nil ||
			fn.Type().NumIn() > chosen.fn.Type().NumIn() {
			chosen = &candidate{fn: fn}
		}
	}
	if chosen == nil {
		return nil, errors.Errorf("no satisfiable constructor for bean '%s' among %d candidates", name, len(def.Constructors))
	}

	fnType := chosen.fn.Type()
	args := make([]reflect.Value, fnType.NumIn())
	for i := 0; i < fnType.NumIn(); i++ {
		paramType := fnType.In(i)
		var v reflect.Value
		var err error
		if i < len(def.Args) && !def.Args[i].empty() {
			v, err = t.resolveArgSpec(def.Args[i], paramType, name)
		} else {
			v, err = t.autowireByType(paramType, name, true)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "constructor argument %d of bean '%s'", i, name)
		}
		args[i] = v
	}

	out := chosen.fn.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, errors.Wrapf(out[1].Interface().(error), "constructor of bean '%s' failed", name)
	}
	if out[0].Kind() == reflect.Ptr && out[0].IsNil() {
		return nil, errors.Errorf("constructor of bean '%s' returned nil", name)
	}
	return out[0].Interface(), nil
}

func validConstructorShape(fnType reflect.Type) bool {
	switch fnType.NumOut() {
	case 1:
		return fnType.Out(0) != errorClass
	case 2:
		return fnType.Out(1) == errorClass
	default:
		return false
	}
}

var errorClass = reflect.TypeOf((*error)(nil)).Elem()

func (t *beanFactory) satisfiable(fnType reflect.Type, def *BeanDefinition) bool {
	for i := 0; i < fnType.NumIn(); i++ {
		if i < len(def.Args) && !def.Args[i].empty() {
			continue
		}
		candidates := t.namesForType(fnType.In(i))
		if len(candidates) == 0 {
			return false
		}
		if len(candidates) > 1 && len(t.primaryOf(candidates)) != 1 {
			return false
		}
	}
	return true
}

func (t *beanFactory) resolveArgSpec(spec ArgSpec, targetType reflect.Type, ownerName string) (reflect.Value, error) {
	switch {
	case spec.hasValue:
		return convertLiteral(spec.value, targetType)
	case spec.ref != "":
		obj, err := t.doGetBean(spec.ref)
		if err != nil {
			return reflect.Value{}, err
		}
		v := reflect.ValueOf(obj)
		if !v.Type().AssignableTo(targetType) {
			return reflect.Value{}, errors.Errorf("referenced bean '%s' of type '%v' is not assignable to '%v'", spec.ref, v.Type(), targetType)
		}
		return v, nil
	case spec.def != nil:
		innerName := spec.def.Name
		if innerName == "" {
			innerName = ownerName + "#inner"
		}
		inner := spec.def.clone()
		if inner.Type == nil && len(inner.Constructors) == 0 && inner.Instance == nil {
			return reflect.Value{}, errors.Errorf("inner definition '%s' resolves to no instantiable type or constructor", innerName)
		}
		obj, err := t.createBean(innerName, inner)
		if err != nil {
			return reflect.Value{}, creationError(innerName, err)
		}
		v := reflect.ValueOf(obj)
		if !v.Type().AssignableTo(targetType) {
			return reflect.Value{}, errors.Errorf("inner bean '%s' of type '%v' is not assignable to '%v'", innerName, v.Type(), targetType)
		}
		return v, nil
	default:
		return t.autowireByType(targetType, ownerName, true)
	}
}

/**
Exactly-one-candidate rule of autowiring by type: zero candidates is an
error when the dependency is required, multiple candidates require a
single primary definition.
*/
func (t *beanFactory) autowireByType(targetType reflect.Type, ownerName string, required bool) (reflect.Value, error) {
	candidates := t.namesForType(targetType)
	switch len(candidates) {
	case 0:
		if required {
			return reflect.Value{}, &NoSuchBeanError{Type: targetType}
		}
		return reflect.Value{}, nil
	case 1:
		obj, err := t.doGetBean(candidates[0])
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(obj), nil
	default:
		primary := t.primaryOf(candidates)
		if len(primary) != 1 {
			return reflect.Value{}, &AmbiguousBeanError{Type: targetType, Candidates: candidates}
		}
		obj, err := t.doGetBean(primary[0])
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(obj), nil
	}
}

func (t *beanFactory) primaryOf(names []string) []string {
	var primary []string
	for _, n := range names {
		if def, ok := t.registry.Find(n); ok && def.Primary {
			primary = append(primary, n)
		}
	}
	return primary
}

/**
Definition names whose declared type satisfies the requested one, in
registration order. Matching consults the instantiable type, so it works
without instantiating anything.
*/
func (t *beanFactory) namesForType(typ reflect.Type) []string {
	var out []string
	for _, name := range t.registry.Names() {
		def, ok := t.registry.Find(name)
		if !ok || def.Abstract {
			continue
		}
		candType := t.definitionType(def)
		if candType == nil {
			continue
		}
		if typeSatisfies(candType, typ) {
			out = append(out, name)
		}
	}
	return out
}

func typeSatisfies(candType, requested reflect.Type) bool {
	if requested.Kind() == reflect.Interface {
		return candType.Implements(requested)
	}
	return candType.AssignableTo(requested)
}

func (t *beanFactory) definitionType(def *BeanDefinition) reflect.Type {
	if def.Type != nil {
		return def.Type
	}
	if def.Instance != nil {
		return reflect.TypeOf(def.Instance)
	}
	for _, ctor := range def.Constructors {
		fnType := reflect.TypeOf(ctor)
		if fnType != nil && fnType.Kind() == reflect.Func && fnType.NumOut() >= 1 {
			return fnType.Out(0)
		}
	}
	return nil
}

/**
Property population: explicit values first, then the definition's
autowire mode over the remaining settable pointer and interface fields.
*/
func (t *beanFactory) populate(obj interface{}, name string, def *BeanDefinition) error {

	valuePtr := reflect.ValueOf(obj)
	if valuePtr.Kind() != reflect.Ptr || valuePtr.Elem().Kind() != reflect.Struct {
		if len(def.Properties) > 0 || def.Autowire != AutowireNone {
			return errors.Errorf("bean '%s' of type '%v' is not a pointer to struct and can not be populated", name, valuePtr.Type())
		}
		return nil
	}
	value := valuePtr.Elem()

	explicit := make(map[string]bool, len(def.Properties))
	for _, prop := range def.Properties {
		field := value.FieldByName(prop.name)
		if !field.IsValid() {
			return errors.Errorf("unknown property '%s' of bean '%s' with type '%v'", prop.name, name, valuePtr.Type())
		}
		if !field.CanSet() {
			return errors.Errorf("property '%s' of bean '%s' is not an exported field", prop.name, name)
		}
		v, err := t.resolveArgSpec(prop.arg, field.Type(), name)
		if err != nil {
			return errors.Wrapf(err, "property '%s' of bean '%s'", prop.name, name)
		}
		field.Set(v)
		explicit[prop.name] = true
		t.tracef("property '%s' of bean '%s' set explicitly", prop.name, name)
	}

	switch def.Autowire {
	case AutowireByType:
		return t.autowireFieldsByType(value, name, explicit)
	case AutowireByName:
		return t.autowireFieldsByName(value, name, explicit)
	default:
		return nil
	}
}

func injectableField(field reflect.StructField) bool {
	if field.Anonymous {
		return false
	}
	kind := field.Type.Kind()
	return kind == reflect.Ptr || kind == reflect.Interface
}

func (t *beanFactory) autowireFieldsByType(value reflect.Value, name string, explicit map[string]bool) error {
	structType := value.Type()
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if explicit[field.Name] || !injectableField(field) {
			continue
		}
		fv := value.Field(i)
		if !fv.CanSet() || !fv.IsZero() {
			continue
		}
		candidates := t.namesForType(field.Type)
		switch len(candidates) {
		case 0:
			// by-type autowiring skips silently on zero candidates
			continue
		case 1:
			obj, err := t.doGetBean(candidates[0])
			if err != nil {
				return errors.Wrapf(err, "autowire field '%s' of bean '%s'", field.Name, name)
			}
			fv.Set(reflect.ValueOf(obj))
		default:
			primary := t.primaryOf(candidates)
			if len(primary) != 1 {
				return errors.Wrapf(&AmbiguousBeanError{Type: field.Type, Candidates: candidates},
					"autowire field '%s' of bean '%s'", field.Name, name)
			}
			obj, err := t.doGetBean(primary[0])
			if err != nil {
				return errors.Wrapf(err, "autowire field '%s' of bean '%s'", field.Name, name)
			}
			fv.Set(reflect.ValueOf(obj))
		}
		t.tracef("field '%s' of bean '%s' autowired by type", field.Name, name)
	}
	return nil
}

func (t *beanFactory) autowireFieldsByName(value reflect.Value, name string, explicit map[string]bool) error {
	structType := value.Type()
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if explicit[field.Name] || !injectableField(field) {
			continue
		}
		fv := value.Field(i)
		if !fv.CanSet() || !fv.IsZero() {
			continue
		}
		beanName := ""
		for _, cand := range []string{field.Name, lowerFirst(field.Name)} {
			if t.registry.Contains(cand) {
				beanName = cand
				break
			}
		}
		if beanName == "" {
			continue
		}
		obj, err := t.doGetBean(beanName)
		if err != nil {
			return errors.Wrapf(err, "autowire field '%s' of bean '%s' by name", field.Name, name)
		}
		v := reflect.ValueOf(obj)
		if !v.Type().AssignableTo(field.Type) {
			return errors.Errorf("bean '%s' of type '%v' is not assignable to field '%s' of bean '%s'", beanName, v.Type(), field.Name, name)
		}
		fv.Set(v)
		t.tracef("field '%s' of bean '%s' autowired by name '%s'", field.Name, name, beanName)
	}
	return nil
}

/**
Initialization callbacks: the framework interface first, then the named
init method of the definition.
*/
func (t *beanFactory) initialize(obj interface{}, name string, def *BeanDefinition) error {
	if init, ok := obj.(InitializingBean); ok {
		t.tracef("post construct of bean '%s'", name)
		if err := init.PostConstruct(); err != nil {
			return errors.Wrapf(err, "post construct of bean '%s' failed", name)
		}
	}
	if def.InitMethod != "" {
		if err := invokeNamedMethod(obj, def.InitMethod); err != nil {
			return errors.Wrapf(err, "init method '%s' of bean '%s' failed", def.InitMethod, name)
		}
	}
	return nil
}

func invokeNamedMethod(obj interface{}, methodName string) error {
	m := reflect.ValueOf(obj).MethodByName(methodName)
	if !m.IsValid() {
		return errors.Errorf("method '%s' not found on type '%v'", methodName, reflect.TypeOf(obj))
	}
	if m.Type().NumIn() != 0 {
		return errors.Errorf("method '%s' on type '%v' must take no arguments", methodName, reflect.TypeOf(obj))
	}
	out := m.Call(nil)
	if len(out) == 1 && m.Type().Out(0) == errorClass && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

func (t *beanFactory) registerDisposable(name string, def *BeanDefinition, obj interface{}) {
	target := obj
	if p, ok := obj.(*Proxy); ok {
		target = p.Target()
	}
	_, disposable := target.(DisposableBean)
	if !disposable && def.DestroyMethod == "" {
		return
	}
	destroyMethod := def.DestroyMethod
	t.singletons.registerDisposable(name, func() error {
		if d, ok := target.(DisposableBean); ok {
			if err := d.Destroy(); err != nil {
				return err
			}
		}
		if destroyMethod != "" {
			return invokeNamedMethod(target, destroyMethod)
		}
		return nil
	})
}

/**
Resolves every finished or creatable singleton implementing the given
interface, skipping beans that are mid-construction. Lazy singletons
participate only after something else initialized them. Used for
processor, listener and advisor discovery.
*/
func (t *beanFactory) beansImplementing(iface reflect.Type) ([]interface{}, error) {
	var out []interface{}
	for _, name := range t.namesForType(iface) {
		def, ok := t.registry.Find(name)
		if !ok || !def.Singleton() {
			continue
		}
		if def.Lazy {
			// discovery must not trigger initialization of a lazy bean
			if obj, finished := t.singletons.get(name); finished {
				out = append(out, obj)
			}
			continue
		}
		if t.singletons.inCreation(name) {
			continue
		}
		obj, err := t.doGetBean(name)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

/**
Locked variant of beansImplementing for callers outside the creation
path.
*/
func (t *beanFactory) resolveImplementing(iface reflect.Type) ([]interface{}, error) {
	t.creationMu.Lock()
	defer t.creationMu.Unlock()
	return t.beansImplementing(iface)
}

func sameIdentity(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if va.Kind() == reflect.Ptr && vb.Kind() == reflect.Ptr {
		return va.Pointer() == vb.Pointer()
	}
	return va.Type() == vb.Type() && a == b
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
