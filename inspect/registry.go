package inspect

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/capatazlib/go-evstream/stream"
)

// ErrNotFound is returned when looking up a stream that is not registered
var ErrNotFound = errors.New("stream not registered")

// ErrRegistryDone is returned when talking to a registry that stopped running
var ErrRegistryDone = errors.New("registry is not running")

// Inspectable is a stream that can be observed through the inspector. Every
// *stream.Stream implements it, whatever its event type.
type Inspectable interface {
	ID() string
	Name() string
	Stats() stream.Stats
	TailStrings(n int) []string
}

// registerStreamMsg adds a stream to the registry
type registerStreamMsg struct {
	stream     Inspectable
	ResultChan chan error
}

// unregisterStreamMsg removes a stream from the registry
type unregisterStreamMsg struct {
	name       string
	ResultChan chan error
}

// listStreamsMsg lists every registered stream
type listStreamsMsg struct {
	ResultChan chan []Inspectable
}

// lookupStreamMsg finds a stream by name
type lookupStreamMsg struct {
	name       string
	ResultChan chan Inspectable
}

// Registry is the record of every stream exposed by the inspector. Its state
// is owned by the goroutine executing Run; other goroutines talk to it through
// messages.
type Registry struct {
	registerChan   chan registerStreamMsg
	unregisterChan chan unregisterStreamMsg
	listChan       chan listStreamsMsg
	lookupChan     chan lookupStreamMsg
	doneChan       chan struct{}

	streams map[string]Inspectable
}

// NewRegistry returns a Registry that serves requests once Run is called
func NewRegistry() *Registry {
	return &Registry{
		registerChan:   make(chan registerStreamMsg),
		unregisterChan: make(chan unregisterStreamMsg),
		listChan:       make(chan listStreamsMsg),
		lookupChan:     make(chan lookupStreamMsg),
		doneChan:       make(chan struct{}),
		streams:        make(map[string]Inspectable),
	}
}

// Run is a loop that handles messages that modify or read the registry
// state. It returns when the given context is done.
func (r *Registry) Run(ctx context.Context) error {
	defer close(r.doneChan)
	for {
		select {
		case <-ctx.Done():
			return nil

		case msg := <-r.registerChan:
			name := msg.stream.Name()
			var err error
			if _, ok := r.streams[name]; ok {
				err = fmt.Errorf("stream %q is already registered", name)
			} else {
				r.streams[name] = msg.stream
			}
			msg.ResultChan <- err

		case msg := <-r.unregisterChan:
			var err error
			if _, ok := r.streams[msg.name]; !ok {
				err = fmt.Errorf("%w: %s", ErrNotFound, msg.name)
			} else {
				delete(r.streams, msg.name)
			}
			msg.ResultChan <- err

		case msg := <-r.listChan:
			acc := make([]Inspectable, 0, len(r.streams))
			for _, s := range r.streams {
				acc = append(acc, s)
			}
			sort.Slice(acc, func(i, j int) bool {
				return acc[i].Name() < acc[j].Name()
			})
			msg.ResultChan <- acc

		case msg := <-r.lookupChan:
			msg.ResultChan <- r.streams[msg.name]
		}
	}
}

// request sends a message to the registry loop and waits for its reply.
// Result channels are buffered, so the loop never blocks on callers that gave
// up waiting.
func request[M any, R any](
	ctx context.Context,
	r *Registry,
	reqChan chan M,
	msg M,
	resultChan chan R,
	caller string,
) (R, error) {
	var zero R
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%s could not talk to registry: %w", caller, ctx.Err())
	case <-r.doneChan:
		return zero, fmt.Errorf("%s: %w", caller, ErrRegistryDone)
	case reqChan <- msg:
	}

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("registry did not reply back to %s: %w", caller, ctx.Err())
	case result := <-resultChan:
		return result, nil
	}
}

// Register adds the given stream to the registry. Stream names must be unique.
func (r *Registry) Register(ctx context.Context, s Inspectable) error {
	resultChan := make(chan error, 1)
	msg := registerStreamMsg{stream: s, ResultChan: resultChan}
	err, reqErr := request(ctx, r, r.registerChan, msg, resultChan, "Register")
	if reqErr != nil {
		return reqErr
	}
	return err
}

// Unregister removes the stream with the given name from the registry
func (r *Registry) Unregister(ctx context.Context, name string) error {
	resultChan := make(chan error, 1)
	msg := unregisterStreamMsg{name: name, ResultChan: resultChan}
	err, reqErr := request(ctx, r, r.unregisterChan, msg, resultChan, "Unregister")
	if reqErr != nil {
		return reqErr
	}
	return err
}

// List returns the registered streams sorted by name
func (r *Registry) List(ctx context.Context) ([]Inspectable, error) {
	resultChan := make(chan []Inspectable, 1)
	return request(ctx, r, r.listChan, listStreamsMsg{ResultChan: resultChan}, resultChan, "List")
}

// Lookup returns the registered stream with the given name
func (r *Registry) Lookup(ctx context.Context, name string) (Inspectable, error) {
	resultChan := make(chan Inspectable, 1)
	msg := lookupStreamMsg{name: name, ResultChan: resultChan}
	s, err := request(ctx, r, r.lookupChan, msg, resultChan, "Lookup")
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s, nil
}
