package zkvm

// Executor runs a guest program and returns the bytes it commits as
// public output.
type Executor interface {
	Execute(program *Program, input []byte) ([]byte, error)
}

// CommitInputExecutor models a guest that reads its input and commits it
// unchanged.
type CommitInputExecutor struct{}

func (CommitInputExecutor) Execute(_ *Program, input []byte) ([]byte, error) {
	return append([]byte(nil), input...), nil
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(program *Program, input []byte) ([]byte, error)

func (f ExecutorFunc) Execute(program *Program, input []byte) ([]byte, error) {
	return f(program, input)
}
