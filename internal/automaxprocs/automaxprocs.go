// Package automaxprocs sets GOMAXPROCS from the container CPU quota when the
// storefront CLI starts.
package automaxprocs

import (
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
)

func init() {
	if _, err := maxprocs.Set(maxprocs.Min(1)); err != nil {
		fmt.Fprintf(os.Stderr, "storefront:warning: could not set GOMAXPROCS: %v\n", err)
	}
}
