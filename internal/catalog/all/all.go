// Package all registers every built-in catalog type in catalog.Default.
// Import it for its side effect.
package all

import (
	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/catalog/azure"
	"github.com/rescale/brocoli/internal/catalog/local"
	"github.com/rescale/brocoli/internal/catalog/minio"
	"github.com/rescale/brocoli/internal/catalog/s3"
	"github.com/rescale/brocoli/internal/catalog/webdav"
)

func init() {
	Register(catalog.Default)
}

// Register adds the built-in types to r.
func Register(r *catalog.Registry) {
	r.MustRegister(local.Type())
	r.MustRegister(s3.Type())
	r.MustRegister(azure.Type())
	r.MustRegister(minio.Type())
	r.MustRegister(webdav.Type())
}
