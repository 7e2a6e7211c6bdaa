// Package strategy maps the string bindings stored on queue items to concrete
// implementations.
//
// Every item names four strategies: a worker (how the manager launches it), a
// broker (how the subprocess turns the payload into a task), a job (the
// lifecycle policy around execution) and a container (how the wrapped task is
// finally invoked). A Registry holds the known keys; publishing validates the
// bindings against it and both the manager and the runner resolve them
// through it.
package strategy
