package runner

import "context"

// Fake is an in-memory Runner for tests. Every invocation is recorded in
// Calls; Handler, when set, decides the response and may produce side
// effects such as writing files a real compiler would have written.
type Fake struct {
	Handler func(name string, args []string) (int, []byte, error)
	Calls   [][]string
}

func (f *Fake) Run(_ context.Context, name string, args ...string) (int, []byte, error) {
	call := append([]string{name}, args...)
	f.Calls = append(f.Calls, call)

	if f.Handler == nil {
		return 0, nil, nil
	}
	return f.Handler(name, args)
}
