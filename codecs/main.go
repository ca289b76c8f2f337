package codecs

// Codec converts between a domain value and its stored document form
type Codec[D any, S any] interface {
	ToDocument(D) (S, error)
	FromDocument(S) (D, error)
}
