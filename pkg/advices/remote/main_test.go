package remote_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/kant-ai/bandsaw/pkg/advices/remote"
	"github.com/kant-ai/bandsaw/pkg/registry"
	"github.com/kant-ai/bandsaw/pkg/runner"
	"github.com/kant-ai/bandsaw/pkg/session"
)

const configName = "remote-test"

// testAdvice is bound into the configuration of the test binary, which is
// also the bundle the advice ships to the "remote".
var testAdvice *remote.Advice

var tasks = registry.NewRegistry()

var testBackend = &countingBackend{Backend: remote.NewLocalBackend()}

func TestMain(m *testing.M) {
	tasks.Register("pid", func(context.Context, ...any) (any, error) {
		return os.Getpid(), nil
	})
	tasks.Register("fail", func(context.Context, ...any) (any, error) {
		return nil, fmt.Errorf("failed in %d", os.Getpid())
	})

	var err error
	testAdvice, err = remote.New(remote.WithBackend(testBackend))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := session.NewConfiguration(configName,
		session.WithTaskRegistry(tasks),
		session.WithAdviceChain(session.DefaultChain, testAdvice))
	if err := session.Register(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if runner.Requested(os.Args[1:]) {
		os.Exit(runner.Main(os.Args[1:]))
	}
	os.Exit(m.Run())
}

// countingBackend records the remote paths files are copied to.
type countingBackend struct {
	remote.Backend
	mu     sync.Mutex
	copies []string
}

func (b *countingBackend) CopyToRemote(ctx context.Context, r remote.Remote, localPath, remotePath string) error {
	b.mu.Lock()
	b.copies = append(b.copies, remotePath)
	b.mu.Unlock()
	return b.Backend.CopyToRemote(ctx, r, localPath, remotePath)
}

func (b *countingBackend) copiedTo(remotePath string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range b.copies {
		if p == remotePath {
			n++
		}
	}
	return n
}
