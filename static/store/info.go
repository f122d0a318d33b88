package store

// RouteInfo is the stored state of a route: Found, NotFound or Errored.
type RouteInfo interface {
	routeInfo()
}

// Found is a successfully loaded route.
type Found struct {
	Path     string
	Data     map[string]any
	Template string
}

// NotFound is the loaded /404 route.
type NotFound struct {
	Path     string
	Data     map[string]any
	Template string
}

// Errored is a route whose load failed.
type Errored struct {
	Path string
	Err  error
}

func (Found) routeInfo()    {}
func (NotFound) routeInfo() {}
func (Errored) routeInfo()  {}

// Match calls the handler for info's variant.
func Match[R any](info RouteInfo, found func(Found) R, notFound func(NotFound) R, errored func(Errored) R) R {
	switch v := info.(type) {
	case Found:
		return found(v)
	case NotFound:
		return notFound(v)
	case Errored:
		return errored(v)
	default:
		panic("store: unknown RouteInfo variant")
	}
}

// content returns the data and template of a loaded route.
func content(info RouteInfo) (map[string]any, string, error) {
	switch v := info.(type) {
	case Found:
		return v.Data, v.Template, nil
	case NotFound:
		return v.Data, v.Template, nil
	case Errored:
		return nil, "", v.Err
	}
	return nil, "", nil
}
