package parser

import (
	"fmt"
	"sort"
	"sync"

	"unify/internal/config"
	"unify/internal/source"
)

var (
	mu        sync.RWMutex
	factories = map[source.Format]Factory{}
)

// Register makes a reader available for format. It is called from the init
// function of each reader package; registering a format twice panics.
func Register(format source.Format, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[format]; dup {
		panic(fmt.Sprintf("parser: format %q registered twice", format))
	}
	factories[format] = f
}

// For returns a reader for format configured with opt.
func For(format source.Format, opt config.Options) (Reader, error) {
	mu.RLock()
	f, ok := factories[format]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if opt == nil {
		opt = config.Options{}
	}
	return f(opt)
}

// Formats lists the registered formats in sorted order.
func Formats() []source.Format {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]source.Format, 0, len(factories))
	for f := range factories {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
