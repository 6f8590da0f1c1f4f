package assets

import _ "embed"

// Templates is the persona message catalogue parsed by internal/persona.
//
//go:embed templates.yaml
var Templates []byte
