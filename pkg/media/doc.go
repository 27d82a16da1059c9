/*
Package media binds concrete media sources to one handle type.

A concrete source implements Impl: bounded random access (Size, Read,
Close) plus a LiveStream constructor for an append-only feed. Sources
that lack one side embed NoLive or NoBounded.

	src := media.New("memory", impl)
	defer src.Close()

	r, err := src.Stream() // seekable, buffered read-ahead
	live, err := src.LiveStream()

Stream and LiveStream are memoized separately. Repeated calls return the
same reader, sharing its position, until that reader is closed.

Registry:

Kinds register a Factory so callers can create sources from configuration:

	media.Register("file", file.Factory)

	src, err := media.Create(media.Config{Kind: "file", Location: "clip.ts"})
	if errors.Is(err, media.ErrUnknownKind) {
		// nobody registered that kind
	}

ImplOf recovers the concrete implementation when kind-specific methods
are needed.
*/
package media
