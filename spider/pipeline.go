package spider

import (
	"fmt"
	"sync"
)

// Pipeline processes extracted items in registration order.
type Pipeline interface {
	ProcessItem(item any, sp Spider) (any, error)
}

// PipelineOpener is implemented by pipelines needing per-spider setup.
type PipelineOpener interface {
	OpenSpider(sp Spider) error
}

// PipelineCloser is implemented by pipelines needing shutdown notification.
type PipelineCloser interface {
	CloseSpider(sp Spider, reason string) error
}

// PipelineConstructor builds a Pipeline from Settings.
type PipelineConstructor func(*Settings) (Pipeline, error)

var (
	pipelineRegistryMu sync.Mutex
	pipelineRegistry   = map[string]PipelineConstructor{}
)

// RegisterPipeline adds a named pipeline constructor to the registry.
func RegisterPipeline(name string, ctor PipelineConstructor) {
	pipelineRegistryMu.Lock()
	defer pipelineRegistryMu.Unlock()
	pipelineRegistry[name] = ctor
}

// BuildPipeline resolves a registered name into a Pipeline instance.
func BuildPipeline(name string, settings *Settings) (Pipeline, error) {
	pipelineRegistryMu.Lock()
	ctor, ok := pipelineRegistry[name]
	pipelineRegistryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("spider: no pipeline registered as %q", name)
	}
	return ctor(settings)
}
