/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

/**
Per-name state of a singleton during one context lifetime. Keeping all
tiers in a single map under a single monitor makes illegal combinations
(an entry both early and finished) unrepresentable.
*/

type singletonState int

const (
	singletonAbsent singletonState = iota
	singletonInCreation
	singletonEarly
	singletonFinished
)

type singletonEntry struct {
	state singletonState

	/**
	Finished instance, valid in singletonFinished only.
	*/
	ref interface{}

	/**
	Early reference already handed out to a dependent, valid in
	singletonEarly only. Never visible outside the construction callstack.
	*/
	early interface{}

	/**
	Produces the early reference on first demand by running the
	early-reference post-processors over the raw instance.
	*/
	earlyFn func() (interface{}, error)
}

type disposableEntry struct {
	name    string
	destroy func() error
}

type singletonCache struct {
	mu      sync.RWMutex
	entries map[string]*singletonEntry

	/**
	Current creation chain. Creation is serialized by the factory's
	creation mutex, so a single chain is sufficient and doubles as the
	structural cycle detector.
	*/
	chain []string

	/**
	Disposables in initialization order, destroyed in reverse.
	*/
	disposables []disposableEntry
}

func newSingletonCache() *singletonCache {
	return &singletonCache{
		entries: make(map[string]*singletonEntry),
	}
}

/**
Lookup of an already-finished singleton. This is the hot path: read lock
only, never blocks on creation.
*/
func (t *singletonCache) get(name string) (interface{}, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entries[name]
	if ok && entry.state == singletonFinished {
		return entry.ref, true
	}
	return nil, false
}

func (t *singletonCache) inCreation(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entries[name]
	return ok && entry.state != singletonFinished
}

func (t *singletonCache) beginCreation(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.entries[name]; ok {
		return errors.Errorf("singleton '%s' is already in state %d", name, entry.state)
	}
	t.entries[name] = &singletonEntry{state: singletonInCreation}
	t.chain = append(t.chain, name)
	return nil
}

func (t *singletonCache) setEarlyFactory(name string, fn func() (interface{}, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.entries[name]; ok && entry.state == singletonInCreation {
		entry.earlyFn = fn
	}
}

/**
Hands out the reference a mid-construction dependent should receive.
Returns false when the bean is not constructed far enough to be exposed,
which for a name already on the creation chain means an unresolvable
constructor-level cycle.
*/
func (t *singletonCache) earlyReference(name string) (interface{}, bool, error) {
	t.mu.Lock()
	entry, ok := t.entries[name]
	if !ok {
		t.mu.Unlock()
		return nil, false, nil
	}
	switch entry.state {
	case singletonFinished:
		ref := entry.ref
		t.mu.Unlock()
		return ref, true, nil
	case singletonEarly:
		early := entry.early
		t.mu.Unlock()
		return early, true, nil
	case singletonInCreation:
		fn := entry.earlyFn
		if fn == nil {
			t.mu.Unlock()
			return nil, false, nil
		}
		t.mu.Unlock()
		// the factory callback runs post-processors, keep it outside the monitor
		early, err := fn()
		if err != nil {
			return nil, false, err
		}
		t.mu.Lock()
		entry.state = singletonEarly
		entry.early = early
		entry.earlyFn = nil
		t.mu.Unlock()
		return early, true, nil
	default:
		t.mu.Unlock()
		return nil, false, nil
	}
}

/**
Returns the early reference if one was actually handed out for the name.
*/
func (t *singletonCache) exposedEarly(name string) (interface{}, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entries[name]
	if ok && entry.state == singletonEarly {
		return entry.early, true
	}
	return nil, false
}

func (t *singletonCache) finishCreation(name string, obj interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[name]
	if !ok {
		entry = &singletonEntry{}
		t.entries[name] = entry
	}
	entry.state = singletonFinished
	entry.ref = obj
	entry.early = nil
	entry.earlyFn = nil
	t.popChain(name)
}

/**
No half-built beans remain cached after a failed creation.
*/
func (t *singletonCache) failCreation(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, name)
	t.popChain(name)
}

func (t *singletonCache) popChain(name string) {
	for i := len(t.chain) - 1; i >= 0; i-- {
		if t.chain[i] == name {
			t.chain = append(t.chain[:i], t.chain[i+1:]...)
			return
		}
	}
}

/**
Chain from the first occurrence of the participant to the tail, closed
with the participant again, for cycle error reporting.
*/
func (t *singletonCache) cycleChain(name string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, n := range t.chain {
		if n == name {
			out := append([]string(nil), t.chain[i:]...)
			return append(out, name)
		}
	}
	return []string{name, name}
}

func (t *singletonCache) pushPrototype(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range t.chain {
		if n == name {
			chain := append(append([]string(nil), t.chain...), name)
			return &CycleError{Chain: chain}
		}
	}
	t.chain = append(t.chain, name)
	return nil
}

func (t *singletonCache) popPrototype(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.popChain(name)
}

func (t *singletonCache) registerDisposable(name string, destroy func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposables = append(t.disposables, disposableEntry{name: name, destroy: destroy})
}

/**
Destroys registered singletons in reverse initialization order and drops
every cache entry. Safe to call on a partially refreshed container.
*/
func (t *singletonCache) destroyAll() error {
	t.mu.Lock()
	disposables := t.disposables
	t.disposables = nil
	t.entries = make(map[string]*singletonEntry)
	t.chain = nil
	t.mu.Unlock()

	var err error
	for i := len(disposables) - 1; i >= 0; i-- {
		d := disposables[i]
		if e := d.destroy(); e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "destroy bean '%s'", d.name))
		}
	}
	return err
}
