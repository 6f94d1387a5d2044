package gemini

// Middleware is a function wrapping a Handler to produce another Handler.
type Middleware func(Handler) Handler

// Mux routes a Request to one of its registered routes, each identified
// by an exact path, running the shared middleware stack around whatever
// route matches. Unlike net/http's ServeMux it has no pattern matching:
// wikihandlers builds the path keys itself from space-relative routes.
type Mux struct {
	middlewares []Middleware
	routes      map[string]Handler
	notFound    Handler
}

func NewMux() *Mux {
	return &Mux{routes: make(map[string]Handler)}
}

// Use appends a handler to the Mux middleware stack.
func (m *Mux) Use(handlers ...Middleware) {
	m.middlewares = append(m.middlewares, handlers...)
}

// Handle registers endpoint for the given exact path.
func (m *Mux) Handle(path string, endpoint Handler) {
	m.routes[path] = endpoint
}

// HandleFunc registers a HandlerFunc for the given exact path.
func (m *Mux) HandleFunc(path string, endpoint func(ResponseWriter, *Request)) {
	m.Handle(path, HandlerFunc(endpoint))
}

// NotFound registers the handler invoked when no route matches.
func (m *Mux) NotFound(endpoint Handler) {
	m.notFound = endpoint
}

func (m *Mux) ServeGemini(w ResponseWriter, r *Request) {
	endpoint, ok := m.routes[r.Path]
	if !ok {
		endpoint = m.notFound
		if endpoint == nil {
			endpoint = HandlerFunc(func(w ResponseWriter, r *Request) {
				w.WriteHeader(StatusNotFound, "not found")
			})
		}
	}

	chain(m.middlewares, endpoint).ServeGemini(w, r)
}

// chain builds a Handler composed of an inline middleware stack and endpoint
// handler in the order they are passed.
func chain(middlewares []Middleware, endpoint Handler) Handler {
	// Return ahead of time if there aren't any middlewares for the chain
	if len(middlewares) == 0 {
		return endpoint
	}

	// Wrap the end handler with the middleware chain
	h := middlewares[len(middlewares)-1](endpoint)
	for i := len(middlewares) - 2; i >= 0; i-- {
		h = middlewares[i](h)
	}

	return h
}
