package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"procqueue/internal/queue"
)

var (
	// ErrUnknownStrategy is returned for a binding key with no registration.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrUnknownTask is returned for a payload naming an unregistered task.
	ErrUnknownTask = errors.New("unknown task")
)

// Kind names one of the four binding slots.
type Kind string

const (
	KindWorker    Kind = "worker"
	KindBroker    Kind = "broker"
	KindJob       Kind = "job"
	KindContainer Kind = "container"
)

// Registry is a lookup table from binding keys to implementations.
type Registry struct {
	mu         sync.RWMutex
	workers    map[string]WorkerFactory
	brokers    map[string]Broker
	jobs       map[string]Job
	containers map[string]Container
	tasks      map[string]Task
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workers:    make(map[string]WorkerFactory),
		brokers:    make(map[string]Broker),
		jobs:       make(map[string]Job),
		containers: make(map[string]Container),
		tasks:      make(map[string]Task),
	}
}

// NewDefaultRegistry returns a registry holding the built-in strategies. Tasks
// are registered by the caller.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterWorker("default", SubprocessWorker)
	r.RegisterBroker("default", TaskBroker{Tasks: r})
	r.RegisterBroker(queue.ScheduleBroker, ScheduleBroker{Tasks: r})
	r.RegisterJob("default", DefaultJob{})
	r.RegisterJob("verbose", VerboseJob{})
	r.RegisterJob("silent", SilentJob{})
	r.RegisterContainer("default", RecoveringContainer{})
	return r
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// RegisterWorker adds or replaces a worker factory.
func (r *Registry) RegisterWorker(key string, factory WorkerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[normalizeKey(key)] = factory
}

// RegisterBroker adds or replaces a broker.
func (r *Registry) RegisterBroker(key string, broker Broker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brokers[normalizeKey(key)] = broker
}

// RegisterJob adds or replaces a job policy.
func (r *Registry) RegisterJob(key string, job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[normalizeKey(key)] = job
}

// RegisterContainer adds or replaces a container.
func (r *Registry) RegisterContainer(key string, container Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[normalizeKey(key)] = container
}

// RegisterTask adds or replaces a named task.
func (r *Registry) RegisterTask(name string, task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[normalizeKey(name)] = task
}

// Worker resolves a worker factory.
func (r *Registry) Worker(key string) (WorkerFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.workers[normalizeKey(key)]; ok {
		return f, nil
	}
	return nil, unknown(KindWorker, key)
}

// Broker resolves a broker.
func (r *Registry) Broker(key string) (Broker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.brokers[normalizeKey(key)]; ok {
		return b, nil
	}
	return nil, unknown(KindBroker, key)
}

// Job resolves a job policy.
func (r *Registry) Job(key string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if j, ok := r.jobs[normalizeKey(key)]; ok {
		return j, nil
	}
	return nil, unknown(KindJob, key)
}

// Container resolves a container.
func (r *Registry) Container(key string) (Container, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.containers[normalizeKey(key)]; ok {
		return c, nil
	}
	return nil, unknown(KindContainer, key)
}

// Task resolves a named task.
func (r *Registry) Task(name string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tasks[normalizeKey(name)]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
}

// Keys lists the registered keys of one kind in sorted order.
func (r *Registry) Keys(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	switch kind {
	case KindWorker:
		keys = mapKeys(r.workers)
	case KindBroker:
		keys = mapKeys(r.brokers)
	case KindJob:
		keys = mapKeys(r.jobs)
	case KindContainer:
		keys = mapKeys(r.containers)
	}
	sort.Strings(keys)
	return keys
}

// TaskNames lists the registered tasks in sorted order.
func (r *Registry) TaskNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := mapKeys(r.tasks)
	sort.Strings(names)
	return names
}

// ValidateBindings checks that every binding in s is registered. It satisfies
// queue.BindingCheck.
func (r *Registry) ValidateBindings(s queue.Settings) error {
	var errs []error
	if _, err := r.Worker(s.Worker); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.Broker(s.Broker); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.Job(s.Job); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.Container(s.Container); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func unknown(kind Kind, key string) error {
	return fmt.Errorf("%w: %s %q", ErrUnknownStrategy, kind, key)
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
