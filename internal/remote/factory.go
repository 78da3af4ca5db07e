package remote

import (
	"fmt"

	"scidataflow/internal/manifest"
)

// New builds the adapter for a manifest binding. claimed is the
// manifest-side inventory, consumed only by the read-only static-URL
// kind. Unknown kinds are an error; the in-memory test remote is not
// constructible here.
func New(b *manifest.RemoteBinding, claimed []File) (Remote, error) {
	switch b.Kind {
	case KindFigshare:
		return NewFigshare(b.Name, b.DepositionID, ""), nil
	case KindZenodo:
		return NewZenodo(b.Name, b.DepositionID, ""), nil
	case KindURL:
		return NewStaticURL(claimed), nil
	case KindS3:
		return NewS3(b.Bucket, b.Prefix, ""), nil
	default:
		return nil, fmt.Errorf("unknown remote kind: %s", b.Kind)
	}
}
