// Package document loads source files and splits them into overlapping
// chunks sized for embedding. Plain text, Markdown and HTML sources are
// supported; HTML is reduced to readable text before splitting.
package document

// Chunk is a contiguous piece of a source document together with the
// provenance needed to cite it.
type Chunk struct {
	// Content is the chunk text.
	Content string

	// Source is the originating file path or URL.
	Source string

	// Page is the 1-based page number within the source, when the source
	// has page structure. Zero means the source is unpaged.
	Page int

	// Index is the 0-based position of the chunk within its page.
	Index int

	// Section is an optional heading or section title, when known.
	Section string

	// ImageRef is an optional URL or path of an image illustrating the
	// chunk, such as a photo of the finished dish.
	ImageRef string
}
