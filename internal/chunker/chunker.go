package chunker

const (
	// DefaultRefinement is how many chunks per worker the pipeline aims for,
	// so a slow chunk does not hold a worker for the whole tail of a run
	DefaultRefinement = 10

	// MinChunkSize is the smallest chunk ever produced
	MinChunkSize = 1
)

// Chunker sizes and splits work into contiguous chunks
type Chunker struct {
	parallelism int
	refinement  int
}

// New creates a Chunker for the given worker count and refinement factor.
// Values below one are treated as one.
func New(parallelism, refinement int) *Chunker {
	return &Chunker{
		parallelism: max(parallelism, 1),
		refinement:  max(refinement, 1),
	}
}

// Size returns the chunk size for n items:
// max(1, max(1, n/parallelism) / refinement)
func (c *Chunker) Size(n int) int {
	size := max(n/c.parallelism, MinChunkSize)
	return max(size/c.refinement, MinChunkSize)
}

// Count returns how many chunks Size(n) produces
func (c *Chunker) Count(n int) int {
	if n <= 0 {
		return 0
	}
	size := c.Size(n)
	return (n + size - 1) / size
}

// Parallelism returns the configured worker count
func (c *Chunker) Parallelism() int {
	return c.parallelism
}

// Split partitions items into contiguous chunks of size.
// The chunks alias items; the last chunk may be shorter.
func Split[T any](items []T, size int) [][]T {
	size = max(size, MinChunkSize)
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// SplitItems partitions items using the chunker's size policy
func SplitItems[T any](c *Chunker, items []T) [][]T {
	return Split(items, c.Size(len(items)))
}
