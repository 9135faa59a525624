package catalog

import _ "embed"

// defaultSeed holds the classroom definitions written on first start when no
// classroom file exists and no seed override was configured.
//
//go:embed seed.yaml
var defaultSeed []byte
