package async

// Dispatcher accepts finished continuations and runs them, either on the
// calling goroutine or on an executor of its choosing.
type Dispatcher interface {
	Connect(op *Op)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(op *Op)

// Connect implements Dispatcher.
func (f DispatcherFunc) Connect(op *Op) {
	f(op)
}

type inline struct{}

func (inline) Connect(op *Op) { op.Run() }

// Inline runs every op immediately on the goroutine that connects it.
var Inline Dispatcher = inline{}

// Or returns d, or Inline when d is nil.
func Or(d Dispatcher) Dispatcher {
	if d == nil {
		return Inline
	}
	return d
}
