/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave_test

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/strandlabs/weave"
)

type userRepository struct {
	Opened bool
}

func (t *userRepository) PostConstruct() error {
	t.Opened = true
	return nil
}

type userService struct {
	Repo *userRepository
}

var userRepositoryClass = reflect.TypeOf((*userRepository)(nil))

func TestContextRefreshAndGetBean(t *testing.T) {

	ctx, err := weave.New(
		&weave.Verbose{Log: zap.NewNop()},
		&weave.BeanDefinition{
			Name: "userRepository",
			Type: reflect.TypeOf((*userRepository)(nil)),
		},
		&weave.BeanDefinition{
			Name:       "userService",
			Type:       reflect.TypeOf((*userService)(nil)),
			Properties: []weave.PropertySpec{weave.PropRef("Repo", "userRepository")},
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	obj, err := ctx.GetBean("userService")
	require.NoError(t, err)

	service := obj.(*userService)
	require.NotNil(t, service.Repo)
	require.True(t, service.Repo.Opened)

	repo, err := ctx.GetBean("userRepository")
	require.NoError(t, err)
	require.Same(t, service.Repo, repo)
}

func TestContextStateBeforeRefresh(t *testing.T) {

	ctx, err := weave.New(
		&weave.BeanDefinition{Name: "userRepository", Type: userRepositoryClass},
	)
	require.NoError(t, err)

	_, err = ctx.GetBean("userRepository")
	require.Error(t, err)

	var stateErr *weave.StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, "GetBean", stateErr.Op)
}

func TestContextDoubleRefresh(t *testing.T) {

	ctx, err := weave.New()
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	err = ctx.Refresh()
	var stateErr *weave.StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestContextCloseIdempotent(t *testing.T) {

	ctx, err := weave.New(
		&weave.BeanDefinition{Name: "userRepository", Type: userRepositoryClass},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())

	require.NoError(t, ctx.Close())
	require.NoError(t, ctx.Close())

	_, err = ctx.GetBean("userRepository")
	require.Error(t, err)
}

func TestSingletonIdentityUnderConcurrency(t *testing.T) {

	ctx, err := weave.New(
		&weave.BeanDefinition{Name: "userRepository", Type: userRepositoryClass},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	const workers = 16
	results := make([]interface{}, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			obj, err := ctx.GetBean("userRepository")
			if err == nil {
				results[slot] = obj
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NotNil(t, results[i])
		require.Same(t, results[0], results[i])
	}
}

func TestPrototypeScope(t *testing.T) {

	ctx, err := weave.New(
		&weave.BeanDefinition{
			Name:  "userRepository",
			Type:  userRepositoryClass,
			Scope: weave.ScopePrototype,
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	first, err := ctx.GetBean("userRepository")
	require.NoError(t, err)
	second, err := ctx.GetBean("userRepository")
	require.NoError(t, err)
	require.NotSame(t, first, second)

	singleton, err := ctx.IsSingleton("userRepository")
	require.NoError(t, err)
	require.False(t, singleton)
}

type lazyProbe struct {
	created *int
}

func newLazyProbe(counter *creationCounter) *lazyProbe {
	counter.count++
	return &lazyProbe{created: &counter.count}
}

type creationCounter struct {
	count int
}

func TestLazySingletonInstantiation(t *testing.T) {

	counter := &creationCounter{}

	ctx, err := weave.New(
		&weave.BeanDefinition{Name: "counter", Instance: counter},
		&weave.BeanDefinition{
			Name:         "lazyProbe",
			Lazy:         true,
			Constructors: []interface{}{newLazyProbe},
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	require.Equal(t, 0, counter.count)

	obj, err := ctx.GetBean("lazyProbe")
	require.NoError(t, err)
	require.NotNil(t, obj)
	require.Equal(t, 1, counter.count)

	_, err = ctx.GetBean("lazyProbe")
	require.NoError(t, err)
	require.Equal(t, 1, counter.count)
}

func TestAliasLookup(t *testing.T) {

	ctx, err := weave.New(
		&weave.BeanDefinition{
			Name:    "userRepository",
			Aliases: []string{"repo", "users"},
			Type:    userRepositoryClass,
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	byName, err := ctx.GetBean("userRepository")
	require.NoError(t, err)
	byAlias, err := ctx.GetBean("repo")
	require.NoError(t, err)
	require.Same(t, byName, byAlias)

	require.True(t, ctx.ContainsBean("users"))
	require.False(t, ctx.ContainsBean("nobody"))
}

func TestGetBeanByType(t *testing.T) {

	ctx, err := weave.New(
		&weave.BeanDefinition{Name: "userRepository", Type: userRepositoryClass},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	obj, err := ctx.GetBeanByType(userRepositoryClass)
	require.NoError(t, err)
	require.IsType(t, &userRepository{}, obj)

	names := ctx.GetBeanNamesForType(userRepositoryClass)
	require.Equal(t, []string{"userRepository"}, names)

	_, err = ctx.GetBeanByType(reflect.TypeOf((*userService)(nil)))
	var missing *weave.NoSuchBeanError
	require.ErrorAs(t, err, &missing)
}

type namedAccount struct {
	Balance int
}

func (t *namedAccount) BeanName() string {
	return "mainAccount"
}

func newOrderBook() *orderBook {
	return &orderBook{Depth: 10}
}

type orderBook struct {
	Depth int
}

func TestScannedInstancesAndConstructors(t *testing.T) {

	ctx, err := weave.New(
		&namedAccount{Balance: 42},
		newOrderBook,
		[]interface{}{
			&weave.BeanDefinition{Name: "userRepository", Type: userRepositoryClass},
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	obj, err := ctx.GetBean("mainAccount")
	require.NoError(t, err)
	require.Equal(t, 42, obj.(*namedAccount).Balance)

	obj, err = ctx.GetBean("orderBook")
	require.NoError(t, err)
	require.Equal(t, 10, obj.(*orderBook).Depth)

	require.True(t, ctx.ContainsBean("userRepository"))
}

func TestBuiltinBeans(t *testing.T) {

	ctx, err := weave.New()
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	obj, err := ctx.GetBean("context")
	require.NoError(t, err)
	require.Same(t, ctx, obj)

	obj, err = ctx.GetBean("properties")
	require.NoError(t, err)
	require.Same(t, ctx.Properties(), obj)
}

type recordingListener struct {
	mu     sync.Mutex
	events []weave.EventType
}

func (t *recordingListener) OnContextEvent(event weave.ContextEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event.Type)
}

func (t *recordingListener) snapshot() []weave.EventType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]weave.EventType(nil), t.events...)
}

type pumpService struct {
	Running bool
}

func (t *pumpService) Start() error {
	t.Running = true
	return nil
}

func (t *pumpService) Stop() error {
	t.Running = false
	return nil
}

func TestContextEventsAndLifecycle(t *testing.T) {

	listener := &recordingListener{}

	ctx, err := weave.New(
		listener,
		&weave.BeanDefinition{Name: "pump", Type: reflect.TypeOf((*pumpService)(nil))},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())

	obj, err := ctx.GetBean("pump")
	require.NoError(t, err)
	pump := obj.(*pumpService)
	require.False(t, pump.Running)

	require.NoError(t, ctx.Start())
	require.True(t, pump.Running)

	require.NoError(t, ctx.Stop())
	require.False(t, pump.Running)

	require.NoError(t, ctx.Close())

	require.Equal(t, []weave.EventType{
		weave.ContextRefreshedEvent,
		weave.ContextStartedEvent,
		weave.ContextStoppedEvent,
		weave.ContextClosingEvent,
		weave.ContextClosedEvent,
	}, listener.snapshot())
}

func TestLifecycleStoppedOnClose(t *testing.T) {

	ctx, err := weave.New(
		&weave.BeanDefinition{Name: "pump", Type: reflect.TypeOf((*pumpService)(nil))},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())

	obj, err := ctx.GetBean("pump")
	require.NoError(t, err)
	pump := obj.(*pumpService)

	require.NoError(t, ctx.Start())
	require.True(t, pump.Running)

	require.NoError(t, ctx.Close())
	require.False(t, pump.Running)
}

type lazyAuditListener struct {
	events int
}

func newLazyAuditListener(counter *creationCounter) *lazyAuditListener {
	counter.count++
	return &lazyAuditListener{}
}

func (t *lazyAuditListener) OnContextEvent(event weave.ContextEvent) {
	t.events++
}

func (t *lazyAuditListener) Start() error { return nil }

func (t *lazyAuditListener) Stop() error { return nil }

func TestLazyListenerNotCreatedByDiscovery(t *testing.T) {

	counter := &creationCounter{}

	ctx, err := weave.New(
		&weave.BeanDefinition{Name: "counter", Instance: counter},
		&weave.BeanDefinition{
			Name:         "auditListener",
			Lazy:         true,
			Constructors: []interface{}{newLazyAuditListener},
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())

	require.Equal(t, 0, counter.count)

	require.NoError(t, ctx.Start())
	require.NoError(t, ctx.Stop())
	require.Equal(t, 0, counter.count)

	obj, err := ctx.GetBean("auditListener")
	require.NoError(t, err)
	require.NotNil(t, obj)
	require.Equal(t, 1, counter.count)

	require.NoError(t, ctx.Close())
	require.Equal(t, 1, counter.count)
}

type replacementContext struct {
	Label string
}

func TestBuiltinBeanShadowing(t *testing.T) {

	mine := &replacementContext{Label: "mine"}

	ctx, err := weave.New(
		&weave.BeanDefinition{Name: "context", Instance: mine},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	obj, err := ctx.GetBean("context")
	require.NoError(t, err)
	require.Same(t, mine, obj)

	obj, err = ctx.GetBean("properties")
	require.NoError(t, err)
	require.Same(t, ctx.Properties(), obj)
}
