package remoteresource

type retainPolicy[Req, Resp any] struct{}

func (retainPolicy[Req, Resp]) Storable() bool                        { return true }
func (retainPolicy[Req, Resp]) SatisfiesWithoutRevalidation(Req) bool { return true }
func (p retainPolicy[Req, Resp]) Revalidated(Req, Resp) (Policy[Req, Resp], bool) {
	return p, false
}

// Retain is a NewPolicy that keeps every response until the key is cleared.
func Retain[Req, Resp any](Req, Resp, PolicyOptions) Policy[Req, Resp] {
	return retainPolicy[Req, Resp]{}
}
